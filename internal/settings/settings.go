// Package settings keeps user secrets (storage credentials and the wallet
// key) in the encrypted zstore "config" collection.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zarlcorp/core/pkg/zstore"

	"github.com/zarlcorp/zpass/internal/artifact"
	"github.com/zarlcorp/zpass/internal/nftstorage"
	"github.com/zarlcorp/zpass/internal/passport"
	"github.com/zarlcorp/zpass/internal/s3store"
	"github.com/zarlcorp/zpass/internal/wallet"
)

// collection keys
const (
	KeyStorage = "storage"
	KeyWallet  = "wallet"
)

// Envelope wraps a JSON-encoded settings value so heterogeneous types can
// share one zstore collection.
type Envelope struct {
	Data json.RawMessage `json:"data"`
}

// Collection is the settings collection.
type Collection = zstore.Collection[Envelope]

// Open returns the settings collection of s.
func Open(s *zstore.Store) (*Collection, error) {
	col, err := zstore.NewCollection[Envelope](s, "config")
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	return col, nil
}

// Load reads a typed value. Missing or unreadable values yield the zero
// value, which every settings type treats as unconfigured.
func Load[T any](col *Collection, key string) T {
	var zero T
	if col == nil {
		return zero
	}

	env, err := col.Get(key)
	if err != nil {
		return zero
	}

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return zero
	}
	return v
}

// Save persists a typed value.
func Save[T any](col *Collection, key string, v T) error {
	if col == nil {
		return errors.New("save settings: store not open")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return col.Put(key, Envelope{Data: data})
}

// storage backends
const (
	BackendNFTStorage = "nftstorage"
	BackendS3         = "s3"
)

// Storage selects and configures the artifact store.
type Storage struct {
	Backend string `json:"backend"`

	Token   string `json:"token"`
	BaseURL string `json:"base_url,omitempty"`

	Bucket          string `json:"bucket,omitempty"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
}

// BackendName returns the backend, defaulting to NFT.Storage.
func (s Storage) BackendName() string {
	if s.Backend == BackendS3 {
		return BackendS3
	}
	return BackendNFTStorage
}

func (s Storage) Configured() bool {
	if s.BackendName() == BackendS3 {
		return s.S3Config().Configured()
	}
	return s.Token != ""
}

// NFTStorageConfig converts settings for the pinning service client.
func (s Storage) NFTStorageConfig() nftstorage.Config {
	return nftstorage.Config{BaseURL: s.BaseURL, Token: s.Token}
}

// S3Config converts settings for the S3 backend.
func (s Storage) S3Config() s3store.Config {
	return s3store.Config{
		Bucket:          s.Bucket,
		Region:          s.Region,
		Endpoint:        s.Endpoint,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
	}
}

// Uploader stores rendered artifacts.
type Uploader interface {
	Upload(ctx context.Context, a artifact.Artifact) (passport.Locator, error)
}

// NewUploader builds the configured backend. An unconfigured NFT.Storage
// client is still returned so that uploads fail as a storage auth error.
func (s Storage) NewUploader(ctx context.Context) (Uploader, error) {
	if s.BackendName() == BackendS3 {
		st, err := s3store.New(ctx, s.S3Config())
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nftstorage.NewClient(s.NFTStorageConfig()), nil
}

// Wallet holds the signing key, either raw or as a keystore file.
type Wallet struct {
	PrivateKey   string `json:"private_key,omitempty"`
	KeystorePath string `json:"keystore_path,omitempty"`
}

func (w Wallet) Configured() bool {
	return strings.TrimSpace(w.PrivateKey) != "" || w.KeystorePath != ""
}

// Open loads the wallet. passphrase is only called for keystore files.
func (w Wallet) Open(passphrase func() (string, error), a wallet.Approver) (*wallet.Wallet, error) {
	if strings.TrimSpace(w.PrivateKey) != "" {
		return wallet.FromHex(w.PrivateKey, a)
	}
	if w.KeystorePath == "" {
		return nil, fmt.Errorf("open wallet: %w: no key configured", passport.ErrWalletUnavailable)
	}

	keyJSON, err := os.ReadFile(w.KeystorePath)
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w: %v", passport.ErrWalletUnavailable, err)
	}
	pass, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}
	return wallet.FromKeystore(keyJSON, pass, a)
}
