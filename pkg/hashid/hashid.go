// Package hashid turns numeric primary keys into prefixed public identifiers.
package hashid

import (
	"fmt"
	"strings"
	"sync"

	hashids "github.com/speps/go-hashids/v2"
)

type Type struct {
	Prefix    string
	Name      string
	MinLength int
}

func NewType(prefix, name string, minLength int) *Type {
	return &Type{Prefix: prefix, Name: name, MinLength: minLength}
}

var (
	mu   sync.RWMutex
	salt = "aira-checkout"
)

// SetSalt changes the salt for every type. Existing ids stop decoding.
func SetSalt(s string) {
	mu.Lock()
	defer mu.Unlock()
	salt = s
}

func codec(t *Type) (*hashids.HashID, error) {
	mu.RLock()
	s := salt
	mu.RUnlock()

	hd := hashids.NewData()
	hd.Salt = s + ":" + t.Name
	hd.MinLength = t.MinLength
	return hashids.NewWithData(hd)
}

func Encode(t *Type, id uint) string {
	h, err := codec(t)
	if err != nil {
		return ""
	}
	s, err := h.EncodeInt64([]int64{int64(id)})
	if err != nil {
		return ""
	}
	return t.Prefix + s
}

func Decode(t *Type, hashID string) (uint, error) {
	if !strings.HasPrefix(hashID, t.Prefix) {
		return 0, fmt.Errorf("invalid %s id %q", t.Name, hashID)
	}
	h, err := codec(t)
	if err != nil {
		return 0, err
	}
	ids, err := h.DecodeInt64WithError(strings.TrimPrefix(hashID, t.Prefix))
	if err != nil {
		return 0, fmt.Errorf("invalid %s id %q: %w", t.Name, hashID, err)
	}
	if len(ids) != 1 || ids[0] <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", t.Name, hashID)
	}
	return uint(ids[0]), nil
}

var (
	TypeOrder     = NewType("od-", "order", 8)
	TypePayment   = NewType("pm-", "payment", 6)
	TypeAbandoned = NewType("ab-", "abandoned", 6)
	TypeProduct   = NewType("pr-", "product", 6)
	TypeUser      = NewType("us-", "user", 6)
	TypeWebhook   = NewType("wh-", "webhook", 6)
)
