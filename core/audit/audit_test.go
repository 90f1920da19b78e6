package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	logsvc "github.com/trezcool/studentnotes/services/logger"
	dummydb "github.com/trezcool/studentnotes/storage/database/dummy"
)

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Deletion request was approved", audit.Describe(audit.DeletionApproved))
	assert.True(t, audit.IsAction(audit.FolderPermissionRevoked))
	assert.False(t, audit.IsAction("NOTE_EATEN"))
	assert.Empty(t, audit.Describe("NOTE_EATEN"))
}

func TestService_Log(t *testing.T) {
	svc := audit.NewService(dummydb.NewAuditRepository(dummydb.Open()), logsvc.NewDiscardLogger())
	actor := audit.Actor{ID: 7, Email: "admin@example.com", Role: "ROLE_ADMIN"}

	t.Run("with request info", func(t *testing.T) {
		ctx := core.WithRequestInfo(context.Background(), core.RequestInfo{
			CorrelationID: "corr-1",
			IPAddress:     "10.0.0.1",
			UserAgent:     "curl/8",
		})
		e, err := svc.Log(ctx, audit.Record{
			Action:        audit.NoteArchived,
			Actor:         actor,
			TargetType:    audit.TargetNote,
			TargetID:      3,
			Description:   "Archived note 'OSI'",
			PreviousState: "PUBLISHED",
			NewState:      "ARCHIVED",
		})
		require.NoError(t, err)
		assert.NotZero(t, e.ID)
		assert.Equal(t, "corr-1", e.CorrelationID)
		assert.Equal(t, "10.0.0.1", e.IPAddress)
		assert.Equal(t, "curl/8", e.UserAgent)
		assert.Equal(t, "admin@example.com", e.ActorEmail)
		assert.Equal(t, "PUBLISHED", e.PreviousState.String)
		assert.Equal(t, "Note was archived", e.ActionDescription())
		assert.WithinDuration(t, time.Now(), e.Timestamp, 5*time.Second)
	})

	t.Run("without request info", func(t *testing.T) {
		e, err := svc.Log(context.Background(), audit.Record{
			Action:     audit.UserLogin,
			Actor:      actor,
			TargetType: audit.TargetUser,
			TargetID:   7,
		})
		require.NoError(t, err)
		assert.Len(t, e.CorrelationID, 36)
		assert.False(t, e.PreviousState.Valid)
		assert.False(t, e.NewState.Valid)
	})
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	svc := audit.NewService(dummydb.NewAuditRepository(dummydb.Open()), logsvc.NewDiscardLogger())
	admin := audit.Actor{ID: 1, Email: "admin@example.com", Role: "ROLE_ADMIN"}
	teacher := audit.Actor{ID: 2, Email: "teacher@example.com", Role: "ROLE_TEACHER"}

	records := []audit.Record{
		{Action: audit.NoteCreated, Actor: teacher, TargetType: audit.TargetNote, TargetID: 10},
		{Action: audit.NoteUpdated, Actor: teacher, TargetType: audit.TargetNote, TargetID: 10},
		{Action: audit.NoteArchived, Actor: admin, TargetType: audit.TargetNote, TargetID: 10},
		{Action: audit.UserDisabled, Actor: admin, TargetType: audit.TargetUser, TargetID: 2},
	}
	for _, rec := range records {
		_, err := svc.Log(ctx, rec)
		require.NoError(t, err)
	}

	tests := []struct {
		name        string
		filter      audit.QueryFilter
		page        core.Paginate
		wantActions []string
		wantTotal   int64
	}{
		{
			name:        "all, newest first",
			wantActions: []string{audit.UserDisabled, audit.NoteArchived, audit.NoteUpdated, audit.NoteCreated},
			wantTotal:   4,
		},
		{
			name:        "by actor",
			filter:      audit.QueryFilter{ActorID: teacher.ID},
			wantActions: []string{audit.NoteUpdated, audit.NoteCreated},
			wantTotal:   2,
		},
		{
			name:        "by target",
			filter:      audit.QueryFilter{TargetType: " Note ", TargetID: 10},
			page:        core.Paginate{Page: 1, Size: 2},
			wantActions: []string{audit.NoteCreated},
			wantTotal:   3,
		},
		{
			name:        "by action",
			filter:      audit.QueryFilter{Action: audit.UserDisabled},
			wantActions: []string{audit.UserDisabled},
			wantTotal:   1,
		},
		{
			name:        "in the future",
			filter:      audit.QueryFilter{From: time.Now().Add(time.Hour)},
			wantActions: []string{},
			wantTotal:   0,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			entries, info, err := svc.Query(ctx, tt.filter, tt.page)
			require.NoError(t, err)

			actions := make([]string, len(entries))
			for i, e := range entries {
				actions[i] = e.Action
			}
			assert.Equal(t, tt.wantActions, actions)
			assert.Equal(t, tt.wantTotal, info.TotalElements)
		})
	}

	count, err := svc.CountSince(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
