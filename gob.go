package boardloop

import (
	"encoding/gob"
	"io"
)

var (
	_ Dumper   = &Memory{}
	_ Restorer = &Memory{}
)

// Dump saves cached entries and returns a number of processed entries.
//
// Values of non-basic types must be registered with gob.Register before the
// dump and before the matching Restore.
func (c *Memory) Dump(w io.Writer) (int, error) {
	encoder := gob.NewEncoder(w)

	return c.Walk(func(key string, value Entry) error {
		return encoder.Encode(struct {
			Key   string
			Entry entry
		}{
			Key:   key,
			Entry: value.(entry),
		})
	})
}

// Restore loads cached entries and returns number of processed entries.
//
// Entries keep their original expiration time, anything that expired between
// dump and restore is evicted on first read as usual.
func (c *Memory) Restore(r io.Reader) (int, error) {
	decoder := gob.NewDecoder(r)
	e := struct {
		Key   string
		Entry entry
	}{}
	n := 0

	for {
		err := decoder.Decode(&e)
		if err == io.EOF {
			break
		}

		if err != nil {
			return n, err
		}

		b := c.bucket(e.Key)

		b.Lock()
		b.data[e.Key] = e.Entry
		b.Unlock()

		n++
	}

	return n, nil
}

// nolint:gochecknoinits // Registering types to a package level registry of "encoding/gob".
func init() {
	// Registering commonly used payload types.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}
