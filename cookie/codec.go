package cookie

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Token is the parsed form of a remember-token cookie value.
type Token struct {
	ExpiresAt int64
	UserID    int64
	Digest    string
}

// Lookup resolves the cookie-binding fields of a principal by id. It is
// supplied by the caller so the codec stays free of persistence concerns.
type Lookup func(ctx context.Context, id int64) (username, salt string, err error)

// Codec bakes and verifies remember-token cookie values of the form
//
//	exp=<unix-seconds>&id=<user-id>&digest=<hex digest>
//
// With an empty signing key the digest is hex(sha256(username ++ salt)),
// the format existing deployments already have on the wire. With a
// signing key configured the digest becomes
// hex(hmac-sha256(key, username ++ salt ++ exp)), which no longer relies
// on the salt staying secret at rest. The two formats are incompatible;
// switching invalidates outstanding cookies.
type Codec struct {
	signingKey []byte
}

// New creates a Codec. signingKey may be nil for the legacy format.
func New(signingKey []byte) *Codec {
	key := make([]byte, len(signingKey))
	copy(key, signingKey)
	return &Codec{signingKey: key}
}

// Bake constructs the cookie value for the given expiry and principal
// fields. Deterministic and stateless.
func (c *Codec) Bake(expiresAt int64, userID int64, username, salt string) string {
	var b strings.Builder
	b.Grow(96)
	b.WriteString("exp=")
	b.WriteString(strconv.FormatInt(expiresAt, 10))
	b.WriteString("&id=")
	b.WriteString(strconv.FormatInt(userID, 10))
	b.WriteString("&digest=")
	b.WriteString(c.digest(expiresAt, username, salt))
	return b.String()
}

// Parse splits a raw cookie value into its fields. The second return is
// false when fewer than two fields are present or exp, id, or digest is
// missing or malformed. Parse never panics on hostile input.
func (c *Codec) Parse(raw string) (Token, bool) {
	pieces := strings.Split(raw, "&")
	if len(pieces) < 2 {
		return Token{}, false
	}

	fields := make(map[string]string, len(pieces))
	for _, piece := range pieces {
		kv := strings.SplitN(piece, "=", 2)
		if len(kv) != 2 {
			continue
		}
		fields[kv[0]] = kv[1]
	}

	expStr, okExp := fields["exp"]
	idStr, okID := fields["id"]
	digest, okDigest := fields["digest"]
	if !okExp || !okID || !okDigest {
		return Token{}, false
	}

	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return Token{}, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Token{}, false
	}

	return Token{ExpiresAt: exp, UserID: id, Digest: digest}, true
}

// Accept reports whether raw is a valid, unexpired token for the given
// principal fields: the re-baked value must match raw byte-for-byte
// (constant-time) and tok.ExpiresAt must lie strictly after now.
func (c *Codec) Accept(raw string, tok Token, username, salt string, now time.Time) bool {
	expected := c.Bake(tok.ExpiresAt, tok.UserID, username, salt)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(raw)) != 1 {
		return false
	}
	return tok.ExpiresAt > now.Unix()
}

// Validate parses raw, resolves the referenced principal through lookup,
// and accepts or rejects the token. Returns the principal id and true on
// success. Malformed input, lookup failure, digest mismatch, and expiry
// all degrade to (0, false); none of them is distinguishable to a caller.
func (c *Codec) Validate(ctx context.Context, raw string, now time.Time, lookup Lookup) (int64, bool) {
	tok, ok := c.Parse(raw)
	if !ok {
		return 0, false
	}

	username, salt, err := lookup(ctx, tok.UserID)
	if err != nil {
		return 0, false
	}

	if !c.Accept(raw, tok, username, salt, now) {
		return 0, false
	}

	return tok.UserID, true
}

func (c *Codec) digest(expiresAt int64, username, salt string) string {
	if len(c.signingKey) == 0 {
		sum := sha256.Sum256([]byte(username + salt))
		return hex.EncodeToString(sum[:])
	}

	mac := hmac.New(sha256.New, c.signingKey)
	mac.Write([]byte(username))
	mac.Write([]byte(salt))
	mac.Write([]byte(strconv.FormatInt(expiresAt, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
