package netabase

import (
	"strings"
	"testing"
)

type contact struct {
	ID    UserID `msgpack:"-"`
	Email string `msgpack:"e"`
}

type emailRecord struct {
	ID   string `msgpack:"-"`
	Note string `msgpack:"n"`
}

func expectPanic(t *testing.T, substr string, f func()) {
	t.Helper()
	defer func() {
		e := recover()
		if e == nil {
			t.Fatalf("** did not panic, wanted %q", substr)
		}
		if msg, _ := e.(error); msg == nil || !strings.Contains(msg.Error(), substr) {
			t.Fatalf("** panic = %v, wanted %q", e, substr)
		}
	}()
	f()
}

func TestAddModelRejectsTableCollisionAcrossModels(t *testing.T) {
	def := NewDefinition("Contacts", DefinitionOpts{})
	byEmail := AddSecondary[string]("email")
	AddModel(def, "User", 1, func(row *contact, kb *KeyBuilder) {
		kb.Secondary(byEmail, row.Email)
	}, nil, []Key{byEmail})

	expectPanic(t, "table User_email of model User_email collides with model User", func() {
		AddModel[emailRecord](def, "User_email", 1, nil, nil, nil)
	})
	isnil(t, def.ModelNamed("User_email"))
	deepEqual(t, len(def.Models()), 1)
}

func TestAddModelRejectsTableCollisionWithLaterSecondary(t *testing.T) {
	def := NewDefinition("Contacts", DefinitionOpts{})
	AddModel[emailRecord](def, "User_email", 1, nil, nil, nil)

	byEmail := AddSecondary[string]("email")
	expectPanic(t, "table User_email of model User collides with model User_email", func() {
		AddModel(def, "User", 1, func(row *contact, kb *KeyBuilder) {
			kb.Secondary(byEmail, row.Email)
		}, nil, []Key{byEmail})
	})
}

func TestAddModelRejectsTableNameUsedTwiceInModel(t *testing.T) {
	def := NewDefinition("Contacts", DefinitionOpts{})
	byHash := AddSecondary[string]("hash")
	expectPanic(t, "table name User_hash used twice in model User", func() {
		AddModel(def, "User", 1, func(row *contact, kb *KeyBuilder) {
			kb.Secondary(byHash, row.Email)
		}, nil, []Key{byHash})
	})
}
