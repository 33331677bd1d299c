/*
Copyright 2025 The marco-fq Authors.

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

package fq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mad-hin/marco-fq/pkg/fq/types"
)

func connKey(id uint64) types.FlowKey {
	return types.FlowKey{ID: id, Kind: types.FlowKindConnection}
}

func TestFlowTable_LookupOrCreate(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tbl := newFlowTable(2, 100)

	f, created, err := tbl.lookupOrCreate(connKey(1), 5000, now)
	require.NoError(t, err)
	require.True(t, created)
	require.NotNil(t, f)
	assert.Equal(t, connKey(1), f.key)
	assert.Equal(t, int64(5000), f.credit, "a fresh record must start with the initial credit")
	assert.Equal(t, flowStateDetached, f.state)
	assert.Equal(t, 1, tbl.flows)
	assert.Equal(t, 1, tbl.inactive)

	again, created, err := tbl.lookupOrCreate(connKey(1), 9999, now)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, f, again, "lookup must return the existing record")
	assert.Equal(t, int64(5000), again.credit, "lookup must not reset credit")
	assert.Equal(t, 1, tbl.flows)
}

func TestFlowTable_KindsDoNotCollide(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tbl := newFlowTable(2, 100)

	conn, _, err := tbl.lookupOrCreate(types.FlowKey{ID: 7, Kind: types.FlowKindConnection}, 0, now)
	require.NoError(t, err)
	orphan, _, err := tbl.lookupOrCreate(types.FlowKey{ID: 7, Kind: types.FlowKindOrphan}, 0, now)
	require.NoError(t, err)
	assert.NotSame(t, conn, orphan, "identical IDs of different kinds must map to distinct records")
	assert.Equal(t, 2, tbl.flows)
}

func TestFlowTable_PopulationCap(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tbl := newFlowTable(1, 2)

	_, _, err := tbl.lookupOrCreate(connKey(1), 0, now)
	require.NoError(t, err)
	_, _, err = tbl.lookupOrCreate(connKey(2), 0, now)
	require.NoError(t, err)

	_, _, err = tbl.lookupOrCreate(connKey(3), 0, now)
	require.ErrorIs(t, err, errTableFull, "creation beyond the cap must be refused")

	// Existing identities are still served at the cap.
	f, created, err := tbl.lookupOrCreate(connKey(1), 0, now)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NotNil(t, f)
}

func TestFlowTable_GCReclaimsLongIdleRecords(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tbl := newFlowTable(1, 1000)

	// Populate enough records, all detached since now, to satisfy the
	// overload trigger once they age past the minimum idle time.
	for id := uint64(1); id <= 20; id++ {
		_, _, err := tbl.lookupOrCreate(connKey(id), 0, now)
		require.NoError(t, err)
	}
	require.Equal(t, 20, tbl.flows)
	require.True(t, tbl.overloaded())

	// Too young: a creation-triggered pass must not reclaim anything.
	_, _, err := tbl.lookupOrCreate(connKey(100), 0, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 21, tbl.flows)
	assert.EqualValues(t, 0, tbl.reclaimed)

	// Old enough: each pass reclaims at most gcMaxCollected from the shard
	// it inserts into.
	later := now.Add(gcMinIdleAge + time.Minute)
	_, _, err = tbl.lookupOrCreate(connKey(101), 0, later)
	require.NoError(t, err)
	assert.LessOrEqual(t, tbl.reclaimed, uint64(gcMaxCollected),
		"a single pass must reclaim no more than %d records", gcMaxCollected)
	assert.Greater(t, tbl.reclaimed, uint64(0), "an overloaded table of aged records must reclaim some")
	assert.Equal(t, 22-int(tbl.reclaimed), tbl.flows)
}

func TestFlowTable_GCSkipsActiveAndInsertingKey(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tbl := newFlowTable(1, 1000)

	active, _, err := tbl.lookupOrCreate(connKey(1), 0, now)
	require.NoError(t, err)
	active.state = flowStateOld
	tbl.noteActivated()

	idle, _, err := tbl.lookupOrCreate(connKey(2), 0, now)
	require.NoError(t, err)

	later := now.Add(gcMinIdleAge + time.Second)
	root := tbl.shard(connKey(2))
	freed := tbl.gc(root, connKey(2), later)

	assert.Zero(t, freed, "gc must skip active records and the identity being inserted")
	assert.Same(t, active, tbl.lookup(tbl.shard(connKey(1)), connKey(1)))
	assert.Same(t, idle, tbl.lookup(tbl.shard(connKey(2)), connKey(2)))

	freed = tbl.gc(root, connKey(99), later)
	assert.Equal(t, 1, freed, "the idle record must be reclaimable under another key's insert")
	assert.Nil(t, tbl.lookup(root, connKey(2)))
}

func TestFlowTable_ReclaimedIdentityGetsFreshRecord(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tbl := newFlowTable(1, 1000)

	stale, _, err := tbl.lookupOrCreate(connKey(1), 100, now)
	require.NoError(t, err)
	stale.credit = -5000 // debt that must not survive reclamation

	later := now.Add(gcMinIdleAge + time.Second)
	tbl.gc(tbl.shard(connKey(1)), connKey(99), later)
	require.Nil(t, tbl.lookup(tbl.shard(connKey(1)), connKey(1)))

	fresh, created, err := tbl.lookupOrCreate(connKey(1), 100, later)
	require.NoError(t, err)
	assert.True(t, created, "a reclaimed identity must get a brand-new record")
	assert.NotSame(t, stale, fresh)
	assert.Equal(t, int64(100), fresh.credit)
}

func TestFlowTable_Overloaded(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tbl := newFlowTable(1, 1000) // trigger needs >= 4 records, majority idle

	for id := uint64(1); id <= 4; id++ {
		_, _, err := tbl.lookupOrCreate(connKey(id), 0, now)
		require.NoError(t, err)
	}
	assert.True(t, tbl.overloaded(), "4 records, all idle, must trip the trigger")

	// Activate most of the population; the trigger must release.
	tbl.noteActivated()
	tbl.noteActivated()
	assert.False(t, tbl.overloaded(), "half-idle must not trip the trigger")
}

func TestFlowTable_Rehash(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tbl := newFlowTable(2, 1000)

	var keep []*flow
	for id := uint64(1); id <= 16; id++ {
		f, _, err := tbl.lookupOrCreate(connKey(id), int64(id), now)
		require.NoError(t, err)
		f.state = flowStateOld
		tbl.noteActivated()
		keep = append(keep, f)
	}
	// Two long-idle records the rehash walk must discard.
	for id := uint64(100); id <= 101; id++ {
		_, _, err := tbl.lookupOrCreate(connKey(id), 0, now.Add(-2*gcMinIdleAge))
		require.NoError(t, err)
	}

	tbl.rehash(4, now)

	assert.Equal(t, uint8(4), tbl.log)
	assert.Len(t, tbl.shards, 16)
	assert.Equal(t, 16, tbl.flows, "rehash must keep active records and discard aged idle ones")
	assert.EqualValues(t, 2, tbl.reclaimed)
	for _, f := range keep {
		assert.Same(t, f, tbl.lookup(tbl.shard(f.key), f.key), "record %v must survive rehash in place", f.key)
	}
	assert.Nil(t, tbl.lookup(tbl.shard(connKey(100)), connKey(100)))
}

func TestFlowTable_Purge(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tbl := newFlowTable(2, 1000)
	for id := uint64(1); id <= 8; id++ {
		_, _, err := tbl.lookupOrCreate(connKey(id), 0, now)
		require.NoError(t, err)
	}

	tbl.purge()
	assert.Equal(t, 0, tbl.flows)
	assert.Equal(t, 0, tbl.inactive)
	assert.Len(t, tbl.shards, 4, "purge must keep the shard layout")
	assert.Nil(t, tbl.lookup(tbl.shard(connKey(1)), connKey(1)))
}
