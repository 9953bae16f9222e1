/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

// KeyringService namespaces logbie entries in the OS credential store.
const KeyringService = "logbie"

// ErrSecretNotFound is returned when a key has no stored value.
var ErrSecretNotFound = errors.New("secret not found")

// Secrets reads and writes named secrets.
type Secrets interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

type keyringSecrets struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// NewSecrets wraps an opened keyring.
func NewSecrets(ring keyring.Keyring) Secrets {
	return &keyringSecrets{ring: ring}
}

// OpenSecrets opens the OS credential store for KeyringService.
func OpenSecrets() (Secrets, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              KeyringService,
		KeychainTrustApplication: true,
		PassPrefix:               KeyringService,
		WinCredPrefix:            KeyringService,
		LibSecretCollectionName:  KeyringService,
	})
	if err != nil {
		return nil, err
	}
	return NewSecrets(ring), nil
}

// openSecrets is replaced in tests.
var openSecrets = OpenSecrets

// UseSecrets makes Load read keyring passwords from s. Passing nil restores
// the OS credential store.
func UseSecrets(s Secrets) {
	if s == nil {
		openSecrets = OpenSecrets
		return
	}
	openSecrets = func() (Secrets, error) { return s, nil }
}

func (k *keyringSecrets) Get(key string) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

func (k *keyringSecrets) Set(key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: KeyringService + " " + key,
	})
}

func (k *keyringSecrets) Remove(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	err := k.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}
