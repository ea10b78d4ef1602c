package netabase

import (
	"bytes"
	"encoding/hex"

	"lukechampine.com/blake3"
)

var accStateKey = []byte("state")

// TopicState is the change accumulator of one topic table. Hash is the XOR
// of blake3(primary || content hash) over subscribed records, so two stores
// holding the same records agree regardless of write order. Version grows on
// every change to the topic.
type TopicState struct {
	Hash    [32]byte `msgpack:"h"`
	Version uint64   `msgpack:"v"`
	Count   uint64   `msgpack:"n"`
}

func (ts TopicState) HashString() string {
	return hex.EncodeToString(ts.Hash[:])
}

func (ts TopicState) IsEmpty() bool {
	return ts.Count == 0 && ts.Hash == [32]byte{}
}

func (ts *TopicState) xor(c [32]byte) {
	for i := range ts.Hash {
		ts.Hash[i] ^= c[i]
	}
}

func subscriptionContribution(keyRaw []byte, contentHash [32]byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write(keyRaw)
	h.Write(contentHash[:])
	var out [32]byte
	h.Sum(out[:0])
	return out
}

func loadTopicState(t *table) (TopicState, error) {
	var ts TopicState
	raw := t.get(subAccumulator, accStateKey)
	if raw == nil {
		return ts, nil
	}
	if err := unmarshalMsgpack(raw, &ts); err != nil {
		return ts, tableErrf(t.name, subAccumulator, err, "decoding topic state")
	}
	return ts, nil
}

func saveTopicState(t *table, ts TopicState) error {
	raw, err := marshalMsgpack(&ts)
	if err != nil {
		return tableErrf(t.name, subAccumulator, err, "encoding topic state")
	}
	return t.put(subAccumulator, accStateKey, raw)
}

// topicUpdates batches accumulator changes so each topic state is written once.
type topicUpdates struct {
	mt     *ModelTables
	states map[int]*TopicState
	order  []int
}

func (u *topicUpdates) state(pos int) (*TopicState, error) {
	if ts := u.states[pos]; ts != nil {
		return ts, nil
	}
	ts, err := loadTopicState(u.mt.topics[pos])
	if err != nil {
		return nil, err
	}
	if u.states == nil {
		u.states = make(map[int]*TopicState)
	}
	u.states[pos] = &ts
	u.order = append(u.order, pos)
	return &ts, nil
}

func (u *topicUpdates) add(pos int, keyRaw []byte, hash [32]byte) error {
	ts, err := u.state(pos)
	if err != nil {
		return err
	}
	ts.xor(subscriptionContribution(keyRaw, hash))
	ts.Count++
	ts.Version++
	return nil
}

func (u *topicUpdates) remove(pos int, keyRaw []byte, hash [32]byte) error {
	ts, err := u.state(pos)
	if err != nil {
		return err
	}
	ts.xor(subscriptionContribution(keyRaw, hash))
	if ts.Count > 0 {
		ts.Count--
	}
	ts.Version++
	return nil
}

func (u *topicUpdates) replace(pos int, keyRaw []byte, oldHash, newHash [32]byte) error {
	if bytes.Equal(oldHash[:], newHash[:]) {
		return nil
	}
	ts, err := u.state(pos)
	if err != nil {
		return err
	}
	ts.xor(subscriptionContribution(keyRaw, oldHash))
	ts.xor(subscriptionContribution(keyRaw, newHash))
	ts.Version++
	return nil
}

func (u *topicUpdates) save() error {
	for _, pos := range u.order {
		if err := saveTopicState(u.mt.topics[pos], *u.states[pos]); err != nil {
			return err
		}
	}
	return nil
}
