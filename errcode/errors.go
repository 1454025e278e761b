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

package errcode

import (
	"errors"
)

var (
	ErrInvalidConfig    = withcode(errors.New("invalid configuration"), InvalidConfig)
	ErrInvalidIdentity  = withcode(errors.New("identity failed local validation"), InvalidIdentity)
	ErrStoreUnavailable = withcode(errors.New("persistent peer store unavailable"), StoreUnavailable)
	ErrServerInternal   = withcode(errors.New("internal error"), InternalError)
)

// Error represents a dedicated error type which carries an ErrCode.
type Error struct {
	Code ErrCode
	Err  error
}

// Error implements the error interface.
func (e Error) Error() string {
	return e.Err.Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// withcode wraps err with the given classification code.
func withcode(err error, code ErrCode) error {
	return Error{
		Code: code,
		Err:  err,
	}
}
