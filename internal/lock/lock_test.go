/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_TryLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, CycleKey, "worker-1")

	mock.ExpectSetNX(CycleKey, "worker-1", 5*time.Second).SetVal(true)
	mock.ExpectSetNX(CycleKey, "worker-1", 5*time.Second).SetVal(false)

	ok, err := locker.TryLock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = locker.TryLock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Lock_Held(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, CycleKey, "worker-1")

	mock.ExpectSetNX(CycleKey, "worker-1", 5*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, CycleKey, "worker-1")

	mock.ExpectEval(unlockScript, []string{CycleKey}, "worker-1").SetVal(int64(1))
	mock.ExpectEval(unlockScript, []string{CycleKey}, "worker-1").SetVal(int64(0))

	assert.NoError(t, locker.Unlock(context.Background()))
	assert.ErrorIs(t, locker.Unlock(context.Background()), ErrLockNotHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Extend(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, CycleKey, "worker-1")

	mock.ExpectEval(extendScript, []string{CycleKey}, "worker-1", "5000").SetVal(int64(1))
	mock.ExpectEval(extendScript, []string{CycleKey}, "worker-1", "5000").SetVal(int64(0))

	assert.NoError(t, locker.Extend(context.Background(), 5*time.Second))
	assert.ErrorIs(t, locker.Extend(context.Background(), 5*time.Second), ErrLockNotHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_OwnersExcludeEachOther(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	first := NewLocker(client, CycleKey, "worker-1")
	second := NewLocker(client, CycleKey, "worker-2")

	require.NoError(t, first.Lock(ctx, time.Minute))
	assert.ErrorIs(t, second.Lock(ctx, time.Minute), ErrLockHeld)
	assert.ErrorIs(t, second.Unlock(ctx), ErrLockNotHeld)

	require.NoError(t, first.Unlock(ctx))
	ok, err := second.TryLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocker_WaitLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	holder := NewLocker(client, CycleKey, "worker-1")
	waiter := NewLocker(client, CycleKey, "worker-2")

	require.NoError(t, holder.Lock(ctx, time.Minute))
	err := waiter.WaitLock(ctx, time.Minute, 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, holder.Unlock(ctx))
	assert.NoError(t, waiter.WaitLock(ctx, time.Minute, 200*time.Millisecond))
}
