package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// Identity is the operator's on-chain identity, derived from the first
// key file (by directory listing order) under ethereum.key_path.
type Identity struct {
	Address common.Address
	keyPath string
}

// LoadIdentity opens the key store at keyPath, confirms the first key
// file decrypts with password, and returns the derived address. Per §6,
// key_path must contain at least one key file; the first by directory
// listing order is used.
func LoadIdentity(keyPath, password string) (*Identity, error) {
	entries, err := os.ReadDir(keyPath)
	if err != nil {
		return nil, NewError("ethereum.key_path", fmt.Sprintf("cannot read key directory %s: %v", keyPath, err))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, NewError("ethereum.key_path", fmt.Sprintf("no key files found under %s", keyPath))
	}
	sort.Strings(names)
	firstKeyFile := names[0]

	ks := keystore.NewKeyStore(keyPath, keystore.StandardScryptN, keystore.StandardScryptP)

	var account *common.Address
	for _, acct := range ks.Accounts() {
		if filepath.Base(acct.URL.Path) == firstKeyFile {
			addr := acct.Address
			account = &addr
			if err := ks.Unlock(acct, password); err != nil {
				return nil, NewError("ethereum.password", fmt.Sprintf("failed to decrypt %s: %v", firstKeyFile, err))
			}
			break
		}
	}
	if account == nil {
		return nil, NewError("ethereum.key_path", fmt.Sprintf("%s is not a valid key store file", firstKeyFile))
	}

	return &Identity{Address: *account, keyPath: keyPath}, nil
}
