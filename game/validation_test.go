package game

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/bxcodec/faker/v4"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/argon2"
)

func TestUsernamesAreEntityNames(t *testing.T) {
	// Whatever a user is called must survive being typed after a room
	// command, so it has to be a single shell word.
	for _, name := range []string{"bob", "Bob_the-2nd", "x", strings.Repeat("a", 16)} {
		if err := validateUsername(name); err != nil {
			t.Errorf("%q: got %v, want valid", name, err)
		}
	}
	for _, name := range []string{
		"",
		"bob smith",
		" bob",
		"bob\t",
		"bob:hi",
		"'bob'",
		"2bob",
		"_bob",
		strings.Repeat("a", 17),
		"böb",
	} {
		if _, ok := validateUsername(name).(InvalidUsernameError); !ok {
			t.Errorf("%q: want InvalidUsernameError", name)
		}
	}
}

func TestReservedUsernames(t *testing.T) {
	for reserved := range reservedUsernames {
		for _, name := range []string{reserved, strings.ToUpper(reserved), strings.ToUpper(reserved[:1]) + reserved[1:]} {
			if validateUsername(name) == nil {
				t.Errorf("reserved name %q accepted", name)
			}
		}
		if err := validateUsername(reserved + "2"); err != nil {
			t.Errorf("%q: got %v, only the exact name is reserved", reserved+"2", err)
		}
	}
}

func withCheapPasswords(t *testing.T) {
	t.Helper()
	prev := passwordParams
	passwordParams.memory = 1024
	passwordParams.threads = 1
	t.Cleanup(func() { passwordParams = prev })
}

type phc struct {
	Algorithm string
	Params    string
	SaltLen   int
	KeyLen    int
}

func parsePHC(t *testing.T, encoded string) phc {
	t.Helper()
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		t.Fatalf("%q is not a PHC string", encoded)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		t.Fatal(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		t.Fatal(err)
	}
	return phc{
		Algorithm: parts[1],
		Params:    parts[2] + "$" + parts[3],
		SaltLen:   len(salt),
		KeyLen:    len(key),
	}
}

func TestPasswordHashFormat(t *testing.T) {
	withCheapPasswords(t)
	hash, err := hashPassword(faker.Password())
	if err != nil {
		t.Fatal(err)
	}
	want := phc{
		Algorithm: "argon2id",
		Params:    fmt.Sprintf("v=%d$m=1024,t=1,p=1", argon2.Version),
		SaltLen:   16,
		KeyLen:    32,
	}
	if diff := cmp.Diff(want, parsePHC(t, hash)); diff != "" {
		t.Errorf("PHC: %v", diff)
	}
	again, err := hashPassword(faker.Password())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Split(hash, "$")[4] == strings.Split(again, "$")[4] {
		t.Errorf("two hashes share a salt")
	}
}

func TestVerifyUsesStoredParams(t *testing.T) {
	withCheapPasswords(t)
	password := faker.Password()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	// Raising the cost later must not lock out existing users.
	passwordParams.time = 2
	passwordParams.memory = 2048
	if !verifyPassword(password, hash) {
		t.Errorf("hash made with older params no longer verifies")
	}
	if verifyPassword(password+"!", hash) {
		t.Errorf("wrong password verified")
	}
}

func TestVerifyRejectsTamperedHashes(t *testing.T) {
	withCheapPasswords(t)
	password := faker.Password()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(hash, "$")
	tamper := func(i int, value string) string {
		changed := append([]string{}, parts...)
		changed[i] = value
		return strings.Join(changed, "$")
	}
	otherSalt := base64.RawStdEncoding.EncodeToString(make([]byte, 16))
	for name, encoded := range map[string]string{
		"argon2i":      tamper(1, "argon2i"),
		"old version":  tamper(2, "v=16"),
		"no params":    tamper(3, "m=1024"),
		"other salt":   tamper(4, otherSalt),
		"empty key":    tamper(5, ""),
		"bad base64":   tamper(5, "!!!"),
		"missing part": strings.Join(parts[:5], "$"),
		"bare":         password,
	} {
		if verifyPassword(password, encoded) {
			t.Errorf("%s: %q verified", name, encoded)
		}
	}
}
