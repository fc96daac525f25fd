package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"

	"analytics-service/internal/config"
	"analytics-service/internal/util"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Manager pseudonymizes PII fields (the client IP address) before they are
// written to the store. A KMS-generated data key is used in production; in
// development a random local key stands in so the pipeline behaves the same.
type Manager struct {
	kmsClient *kms.Client
	config    *config.KMSConfig

	initOnce sync.Once
	initErr  error
	dataKey  []byte
	aead     cipher.AEAD
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{config: &cfg.KMS}

	if cfg.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.KMS.Region))
		if err != nil {
			util.Warn("Failed to load AWS config, PII encryption degraded to local key",
				zap.Error(err))
		} else {
			m.kmsClient = kms.NewFromConfig(awsCfg)
		}
	}

	return m
}

func (m *Manager) init(ctx context.Context) error {
	m.initOnce.Do(func() {
		key, err := m.generateDataKey(ctx)
		if err != nil {
			m.initErr = err
			return
		}

		block, err := aes.NewCipher(key)
		if err != nil {
			m.initErr = err
			return
		}

		aead, err := cipher.NewGCM(block)
		if err != nil {
			m.initErr = err
			return
		}

		m.dataKey = key
		m.aead = aead
	})
	return m.initErr
}

func (m *Manager) generateDataKey(ctx context.Context) ([]byte, error) {
	if m.kmsClient == nil {
		// Local AES-256 key for development and degraded mode.
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate local key: %w", err)
		}
		return key, nil
	}

	result, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.config.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate KMS data key: %w", err)
	}

	util.Info("KMS data key generated", zap.String("key_id", m.config.KeyID))
	return result.Plaintext, nil
}

// EncryptField encrypts a field value with AES-GCM under the data key and
// returns it base64-encoded with the nonce prepended.
func (m *Manager) EncryptField(ctx context.Context, plaintext string) (string, error) {
	if err := m.init(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := m.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField reverses EncryptField for inspection tooling.
func (m *Manager) DecryptField(ctx context.Context, encoded string) (string, error) {
	if err := m.init(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := m.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrDecryptionFailed
	}

	plaintext, err := m.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}
