package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	syncRuns           atomic.Int64
	syncImported       atomic.Int64
	syncSkipped        atomic.Int64
	syncFailed         atomic.Int64
	syncPages          atomic.Int64
	notificationsSent  atomic.Int64
	notificationsFail  atomic.Int64
	retryBacklogMetric atomic.Int64
)

func Init() {}

func ObserveSyncRun(imported, skipped, failed, pages int) {
	syncRuns.Add(1)
	syncImported.Add(int64(imported))
	syncSkipped.Add(int64(skipped))
	syncFailed.Add(int64(failed))
	syncPages.Add(int64(pages))
}

func NotificationSent() {
	notificationsSent.Add(1)
}

func NotificationFailed() {
	notificationsFail.Add(1)
}

func SetRetryBacklog(n int) {
	retryBacklogMetric.Store(int64(n))
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP solutionhub_sync_runs_total Number of registry sync runs completed since start.\n")
	fmt.Fprintf(w, "# TYPE solutionhub_sync_runs_total counter\n")
	fmt.Fprintf(w, "solutionhub_sync_runs_total %d\n", syncRuns.Load())

	fmt.Fprintf(w, "# HELP solutionhub_sync_imported_total Number of tenders created by sync runs.\n")
	fmt.Fprintf(w, "# TYPE solutionhub_sync_imported_total counter\n")
	fmt.Fprintf(w, "solutionhub_sync_imported_total %d\n", syncImported.Load())

	fmt.Fprintf(w, "# HELP solutionhub_sync_skipped_total Number of already-known tenders refreshed by sync runs.\n")
	fmt.Fprintf(w, "# TYPE solutionhub_sync_skipped_total counter\n")
	fmt.Fprintf(w, "solutionhub_sync_skipped_total %d\n", syncSkipped.Load())

	fmt.Fprintf(w, "# HELP solutionhub_sync_failed_total Number of registry records that failed mapping or persistence.\n")
	fmt.Fprintf(w, "# TYPE solutionhub_sync_failed_total counter\n")
	fmt.Fprintf(w, "solutionhub_sync_failed_total %d\n", syncFailed.Load())

	fmt.Fprintf(w, "# HELP solutionhub_sync_pages_total Number of registry pages fetched by sync runs.\n")
	fmt.Fprintf(w, "# TYPE solutionhub_sync_pages_total counter\n")
	fmt.Fprintf(w, "solutionhub_sync_pages_total %d\n", syncPages.Load())

	fmt.Fprintf(w, "# HELP solutionhub_notifications_sent_total Number of notifications handed to the delivery collaborator.\n")
	fmt.Fprintf(w, "# TYPE solutionhub_notifications_sent_total counter\n")
	fmt.Fprintf(w, "solutionhub_notifications_sent_total %d\n", notificationsSent.Load())

	fmt.Fprintf(w, "# HELP solutionhub_notifications_failed_total Number of notification dispatch attempts that failed.\n")
	fmt.Fprintf(w, "# TYPE solutionhub_notifications_failed_total counter\n")
	fmt.Fprintf(w, "solutionhub_notifications_failed_total %d\n", notificationsFail.Load())

	fmt.Fprintf(w, "# HELP solutionhub_notification_retry_backlog Number of failed notifications currently due for retry.\n")
	fmt.Fprintf(w, "# TYPE solutionhub_notification_retry_backlog gauge\n")
	fmt.Fprintf(w, "solutionhub_notification_retry_backlog %d\n", retryBacklogMetric.Load())
}
