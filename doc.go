/*
Package netabase implements a typed multi-index storage engine on top of an
ordered key-value store (Bolt, or an in-memory engine for tests).

An application declares a Definition, a closed set of Models. Each Model is a
Go struct whose first field is the primary key. A Model may declare secondary
keys, relational keys pointing at another Model's primary key, and
subscription topics. The engine keeps every index consistent on create,
update and delete.

Definitions are grouped under a Manager, which lazily opens one backing store
per Definition, unloads stores that were not touched by the last transaction,
and checks a runtime Grant before any table is opened.

# Tables

Each Model owns the following top-level tables:

	{Model}                  primary key => record
	{Model}_{Secondary}      (value, primary) => primary
	{Model}_rel_{Relation}   (foreign key, primary) => primary
	                         nested "rev": (primary, foreign key) => foreign key
	{Model}_sub_{Topic}      (topic, primary) => primary
	                         nested "acc": "state" => topic accumulator
	{Model}_hash             (content hash, primary) => primary

Tables are created on first write. A table that does not exist reads as empty.

# Binary encoding

**Keys** use a tuple encoding: elements back to back, then the lengths of all
but the last element as reversed uvarints, then the element count. Byte order
of a single-element key matches the natural order of its value.

**Record value**: header, then msgpack of the struct with map keys sorted.
The primary key is decoded from the table key on read.

**Record header**:
1. Format version (uvarint), currently 1.
2. Schema version (uvarint).
3. Modification count (uvarint).
4. Data size (uvarint).

# Subscriptions

A topic accumulator is the XOR of blake3(primary || content hash) over all
records subscribed to the topic, so it does not depend on write order and a
record can be removed from it. The version counter grows on every change.
*/
package netabase
