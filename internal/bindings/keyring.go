package bindings

import (
	"context"
	"time"

	"pkgbind/internal/callback"
	"pkgbind/internal/log"
	"pkgbind/internal/value"
	"pkgbind/pkg/keyring"
)

const gpgDateFormat = "01/02/06"

// GPGMap converts key into the map the keyring builtins return.
func GPGMap(key keyring.PublicKey) value.Value {
	expires, expiresRaw := "Never", int64(0)
	if !key.Expires.IsZero() {
		expires, expiresRaw = key.Expires.Format(gpgDateFormat), key.Expires.Unix()
	}
	return value.Map(map[string]value.Value{
		"id":          value.String(key.ID),
		"name":        value.String(key.Name),
		"fingerprint": value.String(key.Fingerprint),
		"path":        value.String(key.Path),
		"created":     value.String(key.Created.Format(gpgDateFormat)),
		"created_raw": value.Int(key.Created.Unix()),
		"expires":     value.String(expires),
		"expires_raw": value.Int(expiresRaw),
		"expired":     value.Bool(key.Expired(time.Now())),
		"trusted":     value.Bool(key.Trusted),
	})
}

// ImportGPGKey adds the keys of file to the trusted or general keyring.
func (p *PkgFunctions) ImportGPGKey(ctx context.Context, file string, trusted bool) bool {
	log.Logger.Infof("Importing %s key: %s", trustedName(trusted), file)
	keys, err := p.keyring.Import(file, trusted)
	if err != nil {
		p.fail("ImportGPGKey", err)
		return false
	}
	if trusted {
		for _, key := range keys {
			p.callbacks.Call(ctx, callback.TrustedKeyAdded, GPGMap(key))
		}
	}
	return true
}

// GPGKeys lists the trusted or general keys.
func (p *PkgFunctions) GPGKeys(trusted bool) value.Value {
	keys, err := p.keyring.Keys(trusted)
	if err != nil {
		p.fail("GPGKeys", err)
		return value.Nil()
	}
	out := make([]value.Value, 0, len(keys))
	for _, key := range keys {
		out = append(out, GPGMap(key))
	}
	return value.List(out...)
}

// DeleteGPGKey removes the key with id.
func (p *PkgFunctions) DeleteGPGKey(ctx context.Context, id string, trusted bool) bool {
	key, found := p.keyring.Lookup(id)
	if err := p.keyring.Delete(id, trusted); err != nil {
		p.fail("DeleteGPGKey", err)
		return false
	}
	if trusted && found {
		p.callbacks.Call(ctx, callback.TrustedKeyRemoved, GPGMap(key))
	}
	return true
}

// CheckGPGKeyFile reads the keys of file without importing them.
func (p *PkgFunctions) CheckGPGKeyFile(file string) value.Value {
	keys, err := keyring.ReadKeyFile(file)
	if err != nil {
		p.fail("CheckGPGKeyFile", err)
		return value.Nil()
	}
	out := make([]value.Value, 0, len(keys))
	for _, key := range keys {
		key.Path = file
		out = append(out, GPGMap(key))
	}
	return value.List(out...)
}

func trustedName(trusted bool) string {
	if trusted {
		return "trusted"
	}
	return "untrusted"
}
