package netabase

import (
	"bytes"
	"fmt"
	"reflect"
)

// scanPairs visits index entries whose first element equals first.
func scanPairs(t *table, sub string, first []byte, f func(second, val []byte) error) error {
	rang := RawPrefix(first)
	c := rang.newCursor(t.bucket(sub))
	for c.Next() {
		a, b, err := decodePair(c.Key())
		if err != nil {
			return tableErrf(t.name, sub, err, "decoding index entry")
		}
		if !bytes.Equal(a, first) {
			continue
		}
		if err := f(b, c.Value()); err != nil {
			return err
		}
	}
	return nil
}

func (mt *ModelTables) primaryKeysIn(t *table, value []byte) ([]any, error) {
	if err := mt.checkRead(); err != nil {
		return nil, err
	}
	var keys []any
	err := scanPairs(t, "", value, func(keyRaw, _ []byte) error {
		key, err := mt.model.DecodeKey(keyRaw)
		if err != nil {
			return tableErrf(t.name, "", err, "decoding primary key")
		}
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

// KeysBySecondary returns primary keys of rows having value under sk.
func (mt *ModelTables) KeysBySecondary(sk *SecondaryKey, value any) ([]any, error) {
	mt.checkOwnKey(sk.model, sk)
	return mt.primaryKeysIn(mt.secondaries[sk.pos], sk.encodeValue(value))
}

// KeysByRelational returns primary keys of rows referencing fk through rk.
func (mt *ModelTables) KeysByRelational(rk *RelationalKey, fk any) ([]any, error) {
	mt.checkOwnKey(rk.model, rk)
	return mt.primaryKeysIn(mt.relations[rk.pos], rk.encodeValue(fk))
}

// RelatedKeys returns the foreign keys the row with the given primary key
// references through rk.
func (mt *ModelTables) RelatedKeys(rk *RelationalKey, key any) ([]any, error) {
	mt.checkOwnKey(rk.model, rk)
	if err := mt.checkRead(); err != nil {
		return nil, err
	}
	t := mt.relations[rk.pos]
	var fks []any
	err := scanPairs(t, subReverse, mt.model.EncodeKey(key), func(fkRaw, _ []byte) error {
		fk, err := rk.valueEnc.decode(fkRaw)
		if err != nil {
			return tableErrf(t.name, subReverse, err, "decoding foreign key")
		}
		fks = append(fks, fk.Interface())
		return nil
	})
	return fks, err
}

// Subscribers returns primary keys of rows subscribed to topic.
func (mt *ModelTables) Subscribers(topic *Topic) ([]any, error) {
	return mt.primaryKeysIn(mt.topics[mt.topicPos(topic)], []byte(topic.name))
}

// TopicState returns the accumulator of topic; zero if nothing was ever subscribed.
func (mt *ModelTables) TopicState(topic *Topic) (TopicState, error) {
	if err := mt.checkRead(); err != nil {
		return TopicState{}, err
	}
	return loadTopicState(mt.topics[mt.topicPos(topic)])
}

// KeysByHash returns primary keys of rows whose content hash is hash.
func (mt *ModelTables) KeysByHash(hash [32]byte) ([]any, error) {
	return mt.primaryKeysIn(mt.hash, hash[:])
}

// Scan returns rows whose encoded primary keys fall into rang.
func (mt *ModelTables) Scan(rang RawRange) ([]any, error) {
	var rows []any
	err := mt.each(rang, func(rowVal reflect.Value) bool {
		rows = append(rows, rowVal.Interface())
		return true
	})
	return rows, err
}

// Count returns the number of rows.
func (mt *ModelTables) Count() (int, error) {
	if err := mt.checkRead(); err != nil {
		return 0, err
	}
	return countEntries(mt.main.bucket("")), nil
}

func (mt *ModelTables) each(rang RawRange, f func(rowVal reflect.Value) bool) error {
	if err := mt.checkRead(); err != nil {
		return err
	}
	c := rang.newCursor(mt.main.bucket(""))
	for c.Next() {
		rowVal, _, err := mt.decodeStored(c.Key(), c.Value())
		if err != nil {
			return err
		}
		if !f(rowVal) {
			break
		}
	}
	return nil
}

func (mt *ModelTables) checkOwnKey(owner *Model, key Key) {
	if owner != mt.model {
		panic(fmt.Errorf("%s: %s key %s belongs to another model", mt.model, key.Family(), key.Name()))
	}
}

func (mt *ModelTables) topicPos(topic *Topic) int {
	for i, t := range mt.model.topics {
		if t == topic {
			return i
		}
	}
	panic(fmt.Errorf("%s: does not subscribe to topic %s", mt.model, topic.name))
}
