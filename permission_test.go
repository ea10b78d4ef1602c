package netabase

import (
	"errors"
	"testing"
)

func isPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func TestLevel(t *testing.T) {
	tests := []struct {
		level    Level
		name     string
		canRead  bool
		canWrite bool
	}{
		{LevelNone, "none", false, false},
		{LevelRead, "read", true, false},
		{LevelWrite, "write", false, true},
		{LevelReadWrite, "read_write", true, true},
		{LevelAdmin, "admin", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deepEqual(t, tt.level.String(), tt.name)
			deepEqual(t, tt.level.CanRead(), tt.canRead)
			deepEqual(t, tt.level.CanWrite(), tt.canWrite)

			text := must(tt.level.MarshalText())
			deepEqual(t, string(text), tt.name)
			var l Level
			ok(t, l.UnmarshalText(text))
			deepEqual(t, l, tt.level)
		})
	}

	var l Level
	if err := l.UnmarshalText([]byte("superuser")); err == nil {
		t.Errorf("** UnmarshalText(superuser) succeeded, wanted an error")
	}
	if _, err := Level(42).MarshalText(); err == nil {
		t.Errorf("** MarshalText(42) succeeded, wanted an error")
	}
	deepEqual(t, Level(42).String(), "Level(42)")
}

func TestCheckPermission(t *testing.T) {
	tests := []struct {
		name    string
		grant   *Grant
		def     *Definition
		write   bool
		allowed bool
	}{
		{"no grant", nil, usersDef, false, false},
		{"read covered", ReadGrant("Users"), usersDef, false, true},
		{"read grant denies write", ReadGrant("Users"), usersDef, true, false},
		{"uncovered definition", ReadGrant("Users"), inventoryDef, false, false},
		{"wildcard coverage", ReadGrant(AllDefinitions), inventoryDef, false, true},
		{"write-only denies read", &Grant{Level: LevelWrite, Definitions: []string{"Users"}}, usersDef, false, false},
		{"write-only allows write", &Grant{Level: LevelWrite, Definitions: []string{"Users"}}, usersDef, true, true},
		{"cross read", &Grant{Level: LevelRead, Definitions: []string{"Users"}, Cross: map[string]CrossAccess{"Inventory": {Read: true}}}, inventoryDef, false, true},
		{"cross read denies write", &Grant{Level: LevelReadWrite, Definitions: []string{"Users"}, Cross: map[string]CrossAccess{"Inventory": {Read: true}}}, inventoryDef, true, false},
		{"cross hydrate only", &Grant{Level: LevelRead, Definitions: []string{"Users"}, Cross: map[string]CrossAccess{"Inventory": {Hydrate: true}}}, inventoryDef, false, false},
		{"none level", &Grant{Level: LevelNone, Definitions: []string{AllDefinitions}}, usersDef, false, false},
		{"admin read", AdminGrant(), inventoryDef, false, true},
		{"admin write", AdminGrant(), usersDef, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPermission(tt.grant, tt.def, tt.write)
			if tt.allowed {
				ok(t, err)
				return
			}
			if !isPermissionDenied(err) {
				t.Fatalf("** CheckPermission = %v, wanted permission denied", err)
			}
			var pe *PermissionError
			if !errors.As(err, &pe) {
				t.Fatalf("** CheckPermission = %T, wanted *PermissionError", err)
			}
			deepEqual(t, pe.Definition, tt.def.Name())
			deepEqual(t, pe.Write, tt.write)
		})
	}
}

func TestCheckHydrate(t *testing.T) {
	crossHydrate := &Grant{Level: LevelRead, Definitions: []string{"Users"}, Cross: map[string]CrossAccess{"Inventory": {Hydrate: true}}}
	crossReadOnly := &Grant{Level: LevelRead, Definitions: []string{"Users"}, Cross: map[string]CrossAccess{"Inventory": {Read: true}}}

	ok(t, CheckHydrate(ReadGrant("Users"), usersDef, usersDef))
	ok(t, CheckHydrate(crossHydrate, usersDef, inventoryDef))
	ok(t, CheckHydrate(AdminGrant(), usersDef, inventoryDef))

	for name, err := range map[string]error{
		"same definition uncovered": CheckHydrate(ReadGrant("Inventory"), usersDef, usersDef),
		"no grant":                  CheckHydrate(nil, usersDef, inventoryDef),
		"no cross entry":            CheckHydrate(ReadGrant("Users"), usersDef, inventoryDef),
		"cross read is not hydrate": CheckHydrate(crossReadOnly, usersDef, inventoryDef),
		"write-only level": CheckHydrate(&Grant{
			Level: LevelWrite, Cross: map[string]CrossAccess{AllDefinitions: {Hydrate: true}},
		}, usersDef, inventoryDef),
	} {
		if !isPermissionDenied(err) {
			t.Errorf("** %s: CheckHydrate = %v, wanted permission denied", name, err)
		}
	}
}

func TestGrantCoversAndCrossFor(t *testing.T) {
	var nilGrant *Grant
	deepEqual(t, nilGrant.Covers("Users"), false)
	deepEqual(t, nilGrant.CrossFor("Users"), CrossAccess{})
	deepEqual(t, nilGrant.String(), "<no grant>")

	g := &Grant{
		Level:       LevelRead,
		Definitions: []string{"Users", "Inventory"},
		Cross: map[string]CrossAccess{
			"Billing":      {Read: true},
			AllDefinitions: {Hydrate: true},
		},
	}
	deepEqual(t, g.Covers("Users"), true)
	deepEqual(t, g.Covers("Billing"), false)
	deepEqual(t, g.CrossFor("Billing"), CrossAccess{Read: true})
	deepEqual(t, g.CrossFor("Other"), CrossAccess{Hydrate: true})
	deepEqual(t, g.String(), "read[Users,Inventory]")
}
