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

package store

import (
	lediscfg "github.com/ledisdb/ledisdb/config"
	"github.com/ledisdb/ledisdb/ledis"
	"go.uber.org/zap"
)

// LedisStore is an embedded-KV-backed Store, for single-node deployments
// that want objects to survive a process restart without standing up a
// relational database.
type LedisStore struct {
	db *ledis.DB
}

// NewLedisStore opens (creating if needed) a ledis database rooted at
// dataPath.
func NewLedisStore(dataPath string) (*LedisStore, error) {
	cfg := lediscfg.NewConfigDefault()
	cfg.DataDir = dataPath
	l, err := ledis.Open(cfg)
	if err != nil {
		return nil, err
	}
	db, err := l.Select(0)
	if err != nil {
		return nil, err
	}
	zap.L().Info("opened ledis object store", zap.String("path", dataPath))
	return &LedisStore{db: db}, nil
}

// Get implements Store.
func (s *LedisStore) Get(typ ObjectType, id []byte) ([]byte, error) {
	v, err := s.db.Get([]byte(storeKey(typ, id)))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

// Put implements Store.
func (s *LedisStore) Put(typ ObjectType, id []byte, data []byte) error {
	return s.db.Set([]byte(storeKey(typ, id)), data)
}
