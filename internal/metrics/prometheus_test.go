package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordQueueJoin(t *testing.T) {
	QueueJoinsTotal.Reset()

	RecordQueueJoin("1v1", false)
	RecordQueueJoin("1v1", false)
	RecordQueueJoin("1v1", true)

	count := testutil.ToFloat64(QueueJoinsTotal.WithLabelValues("1v1", "created"))
	if count != 2 {
		t.Errorf("Expected created count = 2, got %f", count)
	}

	count = testutil.ToFloat64(QueueJoinsTotal.WithLabelValues("1v1", "existing"))
	if count != 1 {
		t.Errorf("Expected existing count = 1, got %f", count)
	}
}

func TestRecordQueueTransition(t *testing.T) {
	QueueTransitionsTotal.Reset()

	RecordQueueTransition("expired", 3)
	RecordQueueTransition("expired", 0)
	RecordQueueTransition("cancelled", 1)

	count := testutil.ToFloat64(QueueTransitionsTotal.WithLabelValues("expired"))
	if count != 3 {
		t.Errorf("Expected expired count = 3, got %f", count)
	}
}

func TestSetSearchingEntries(t *testing.T) {
	SetSearchingEntries("2v2", 7)
	SetSearchingEntries("2v2", 4)

	count := testutil.ToFloat64(QueueSearchingEntries.WithLabelValues("2v2"))
	if count != 4 {
		t.Errorf("Expected searching entries = 4, got %f", count)
	}
}

func TestRecordMatchCreated(t *testing.T) {
	MatchesCreatedTotal.Reset()
	MatchXPDiff.Reset()

	RecordMatchCreated("1v1", 50)
	RecordMatchCreated("1v1", 120)

	count := testutil.ToFloat64(MatchesCreatedTotal.WithLabelValues("1v1"))
	if count != 2 {
		t.Errorf("Expected matches created = 2, got %f", count)
	}

	if n := testutil.CollectAndCount(MatchXPDiff); n != 1 {
		t.Errorf("Expected one xp diff series, got %d", n)
	}
}

func TestRecordXPChange(t *testing.T) {
	XPChangesTotal.Reset()
	RankChangesTotal.Reset()

	RecordXPChange("competition_win", true, false, "Bronze II")
	RecordXPChange("rank_decay", false, true, "Bronze III")
	RecordXPChange("daily_activity", false, false, "Bronze III")

	if count := testutil.ToFloat64(XPChangesTotal.WithLabelValues("competition_win")); count != 1 {
		t.Errorf("Expected competition_win count = 1, got %f", count)
	}
	if count := testutil.ToFloat64(RankChangesTotal.WithLabelValues("up", "Bronze II")); count != 1 {
		t.Errorf("Expected rank up count = 1, got %f", count)
	}
	if count := testutil.ToFloat64(RankChangesTotal.WithLabelValues("down", "Bronze III")); count != 1 {
		t.Errorf("Expected rank down count = 1, got %f", count)
	}
}

func TestRecordSchedulerJobRun(t *testing.T) {
	SchedulerJobsRunTotal.Reset()

	RecordSchedulerJobRun("matchmaking", "success")
	RecordSchedulerJobRun("matchmaking", "error")
	RecordSchedulerJobRun("matchmaking", "success")

	if count := testutil.ToFloat64(SchedulerJobsRunTotal.WithLabelValues("matchmaking", "success")); count != 2 {
		t.Errorf("Expected success count = 2, got %f", count)
	}
}

func TestObserveSchedulerJobDuration(t *testing.T) {
	SchedulerJobDurationSeconds.Reset()

	ObserveSchedulerJobDuration("cleanup", 0.2)
	SetSchedulerLastRun("cleanup")

	if n := testutil.CollectAndCount(SchedulerJobDurationSeconds); n != 1 {
		t.Errorf("Expected one duration series, got %d", n)
	}
	if v := testutil.ToFloat64(SchedulerLastRunTimestamp.WithLabelValues("cleanup")); v <= 0 {
		t.Errorf("Expected last run timestamp to be set, got %f", v)
	}
}
