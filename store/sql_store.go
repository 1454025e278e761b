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
	"encoding/hex"
	"errors"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlObject is the single-table representation of every stored object;
// typ and id together form the natural key, matching the ObjectType+id
// addressing scheme of the Store interface.
type sqlObject struct {
	Typ  byte   `gorm:"column:typ;primaryKey"`
	ID   string `gorm:"column:id;primaryKey"`
	Data []byte `gorm:"column:data"`
}

func (sqlObject) TableName() string { return "vl1_objects" }

// SQLStore is a relational-database-backed Store, for multi-process
// deployments sharing one object namespace across instances.
type SQLStore struct {
	db *gorm.DB
}

// MySQLConfig carries the DSN parameters used to open a SQLStore backed by
// MySQL.
type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DB       string
}

// NewSQLStore opens a MySQL-backed SQLStore and migrates its schema.
func NewSQLStore(cfg MySQLConfig) (*SQLStore, error) {
	dsn := cfg.User + ":" + cfg.Password + "@tcp(" + cfg.Host + ")/" + cfg.DB + "?charset=utf8&parseTime=true&loc=Local"
	db, err := gorm.Open(mysql.New(mysql.Config{DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&sqlObject{}); err != nil {
		return nil, err
	}
	zap.L().Info("opened sql object store", zap.String("host", cfg.Host), zap.String("db", cfg.DB))
	return &SQLStore{db: db}, nil
}

// Get implements Store.
func (s *SQLStore) Get(typ ObjectType, id []byte) ([]byte, error) {
	var row sqlObject
	err := s.db.Where("typ = ? AND id = ?", byte(typ), hex.EncodeToString(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.Data, nil
}

// Put implements Store.
func (s *SQLStore) Put(typ ObjectType, id []byte, data []byte) error {
	row := sqlObject{Typ: byte(typ), ID: hex.EncodeToString(id), Data: data}
	return s.db.Save(&row).Error
}
