package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
	"github.com/segledger/segledger/internal/statestore"
)

// bookmark is the decoded form of a page token. The hash binds the token to
// the query that produced it so a token cannot resume a different query.
type bookmark struct {
	Key  string `json:"k"`
	Hash string `json:"h"`
}

func queryHash(scope statestore.Scope, q statestore.Query) string {
	h := sha256.New()
	h.Write([]byte(scope.String()))
	h.Write([]byte{0})
	h.Write([]byte(q.Table))
	h.Write([]byte{0})
	h.Write([]byte(q.Selector.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// encodeBookmark renders an opaque resumption token for the query.
func encodeBookmark(scope statestore.Scope, q statestore.Query, lastKey string) string {
	raw, _ := json.Marshal(bookmark{Key: lastKey, Hash: queryHash(scope, q)})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// decodeBookmark parses a page token and checks it belongs to the query.
// The empty token selects the first page.
func decodeBookmark(scope statestore.Scope, q statestore.Query, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeValidation, "malformed page token", err)
	}
	var b bookmark
	if err := json.Unmarshal(raw, &b); err != nil {
		return "", apperrors.Wrap(apperrors.CodeValidation, "malformed page token", err)
	}
	if b.Hash != queryHash(scope, q) {
		return "", apperrors.New(apperrors.CodeValidation, "page token does not match the query")
	}
	return b.Key, nil
}
