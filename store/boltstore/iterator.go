package boltstore

import "bytes"

// cursor is the subset of *bolt.Cursor this package depends on, so the
// iterators can be exercised without a live bbolt database in tests.
type cursor interface {
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
	Last() (key, value []byte)
	Prev() (key, value []byte)
}

type forwardIterator struct {
	c          cursor
	lowerBound []byte
	started    bool
	key, val   []byte
	valid      bool
}

func newForwardIterator(c cursor, lowerBound []byte) *forwardIterator {
	return &forwardIterator{c: c, lowerBound: lowerBound}
}

func (it *forwardIterator) Next() bool {
	var k, v []byte
	if !it.started {
		it.started = true
		if it.lowerBound == nil {
			k, v = it.c.Seek(nil)
		} else {
			k, v = it.c.Seek(it.lowerBound)
		}
	} else {
		k, v = it.c.Next()
	}
	if k == nil {
		it.valid = false
		return false
	}
	it.key, it.val, it.valid = k, v, true
	return true
}

func (it *forwardIterator) Key() []byte {
	if !it.valid {
		return nil
	}
	return it.key
}

func (it *forwardIterator) Value() []byte {
	if !it.valid {
		return nil
	}
	return it.val
}

func (it *forwardIterator) Close() error { return nil }

// reverseIterator walks backward from the greatest key <= upperBound (or
// the last key in the table when upperBound is nil).
type reverseIterator struct {
	c          cursor
	upperBound []byte
	started    bool
	key, val   []byte
	valid      bool
}

func newReverseIterator(c cursor, upperBound []byte) *reverseIterator {
	return &reverseIterator{c: c, upperBound: upperBound}
}

func (it *reverseIterator) Next() bool {
	var k, v []byte
	if !it.started {
		it.started = true
		if it.upperBound == nil {
			k, v = it.c.Last()
		} else {
			k, v = it.c.Seek(it.upperBound)
			if k == nil {
				k, v = it.c.Last()
			} else if !bytes.Equal(k, it.upperBound) {
				k, v = it.c.Prev()
			}
		}
	} else {
		k, v = it.c.Prev()
	}
	if k == nil {
		it.valid = false
		return false
	}
	it.key, it.val, it.valid = k, v, true
	return true
}

func (it *reverseIterator) Key() []byte {
	if !it.valid {
		return nil
	}
	return it.key
}

func (it *reverseIterator) Value() []byte {
	if !it.valid {
		return nil
	}
	return it.val
}

func (it *reverseIterator) Close() error { return nil }
