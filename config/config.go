// Copyright 2021 PairMesh, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and persists the on-disk configuration of a vl1core
// node: its listen address, storage backend choice, trusted root identities,
// and its own local Identity.
package config

import (
	"bytes"
	"encoding/base64"
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/pkg/errors"
	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/security"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// StoreBackend selects the cached-peer/path storage implementation (§vl2,
// store package).
type StoreBackend string

const (
	StoreBackendMem   StoreBackend = "mem"
	StoreBackendLedis StoreBackend = "ledis"
	StoreBackendSQL   StoreBackend = "sql"
)

// Store configures the selected storage backend.
type Store struct {
	Backend StoreBackend `yaml:"backend"`
	// Path is the LedisDB data directory, used when Backend is "ledis".
	Path string `yaml:"path,omitempty"`

	// MySQL connection parameters, used when Backend is "sql".
	MySQLHost     string `yaml:"mysqlHost,omitempty"`
	MySQLPort     int    `yaml:"mysqlPort,omitempty"`
	MySQLUser     string `yaml:"mysqlUser,omitempty"`
	MySQLPassword string `yaml:"mysqlPassword,omitempty"`
	MySQLDB       string `yaml:"mysqlDB,omitempty"`
}

// Config is the on-disk configuration of a single vl1core node.
type Config struct {
	// Name is a human-readable label for this node, defaulting to a salted
	// machine id the first time a config is generated.
	Name string `yaml:"name"`

	// Listen is the UDP address this node binds to, e.g. ":9993".
	Listen string `yaml:"listen"`

	// IdentitySecret is the base64 encoding of this node's full private
	// Identity (security.Identity.MarshalSecret). Generated and persisted
	// back to disk the first time a config without one is loaded.
	IdentitySecret string `yaml:"identitySecret"`

	// Roots lists the base64-encoded public Identity (security.Identity.
	// Marshal) of every trusted root this node should bootstrap from.
	Roots []string `yaml:"roots"`

	Store Store `yaml:"store"`

	// PeriodicInterval paces Engine.Periodic's maintenance tick.
	PeriodicInterval time.Duration `yaml:"periodicInterval,omitempty"`
}

// New returns a config instance with default values.
func New() *Config {
	name, err := machineid.ProtectedID(constant.MachineIDProtect)
	if err != nil {
		name = "vl1node"
	}

	return &Config{
		Name:             name,
		Listen:           ":9993",
		Store:            Store{Backend: StoreBackendMem},
		PeriodicInterval: 5 * time.Second,
	}
}

// FromReader decodes a Config from reader, falling back to New()'s defaults
// for anything the YAML document doesn't set.
func FromReader(reader io.Reader) (*Config, error) {
	c := New()
	if err := yaml.NewDecoder(reader).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return c, nil
}

// FromBytes decodes a Config from a YAML document held in memory.
func FromBytes(data []byte) (*Config, error) {
	return FromReader(bytes.NewReader(data))
}

// FromPath loads the Config at path, generating and persisting a fresh local
// Identity back to the file when one isn't already present (mirroring the
// relay's generate-missing-DHKey behavior).
func FromPath(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	cfg, err := FromBytes(data)
	if err != nil {
		return nil, err
	}

	if cfg.IdentitySecret == "" {
		id, err := security.GenerateV2()
		if err != nil {
			return nil, err
		}
		secret, err := id.MarshalSecret()
		if err != nil {
			return nil, err
		}
		cfg.IdentitySecret = base64.StdEncoding.EncodeToString(secret)
		zap.L().Info("Generated node identity", zap.Stringer("address", id.Address()))

		if err := cfg.save(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) save(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	return yaml.NewEncoder(file).Encode(c)
}

// Identity decodes this node's local private Identity from IdentitySecret.
func (c *Config) Identity() (*security.Identity, error) {
	if c.IdentitySecret == "" {
		return nil, errors.New("config: no identity configured")
	}
	raw, err := base64.StdEncoding.DecodeString(c.IdentitySecret)
	if err != nil {
		return nil, errors.Wrap(err, "config: decode identitySecret")
	}
	return security.UnmarshalIdentitySecret(raw)
}

// TrustedRoots decodes every entry in Roots into a public Identity.
func (c *Config) TrustedRoots() ([]*security.Identity, error) {
	roots := make([]*security.Identity, 0, len(c.Roots))
	for _, encoded := range c.Roots {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, errors.Wrap(err, "config: decode root identity")
		}
		id, _, err := security.UnmarshalIdentity(raw)
		if err != nil {
			return nil, errors.Wrap(err, "config: parse root identity")
		}
		roots = append(roots, id)
	}
	return roots, nil
}
