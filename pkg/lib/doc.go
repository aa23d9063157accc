// Package lib provides a Go SDK to trigger and follow billing back office operations
// programmatically.
//
// It is the same engine the opwatch CLI uses: every scan, cleanup and validation is tracked
// as a task, persisted, polled when needed and reported through notifications.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{
//	    APIURL:   "https://backoffice.example.com",
//	    APIToken: os.Getenv("OPWATCH_API_TOKEN"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Scans are synchronous on the back office.
//	t, err := client.Scan(ctx, "journal_ventes")
//
//	// Cleanups and validations are jobs, they are polled every 2s until they finish.
//	job, err := client.StartCleanup(ctx, lib.CleanupOpts{DryRun: true})
//	job, err = client.WaitJob(ctx, job.ID)
//
// # Tasks
//
// A task follows the lifecycle idle -> running -> success|error. Triggering an operation that is
// already running returns [ErrAlreadyRunning]. Failures of the remote operation are not returned
// as errors, they are recorded on the task and reported as notifications.
//
// Tasks are persisted, a new client sees the tasks left running by a previous one.
// [Client.ResumeJobs] starts following those jobs again.
//
// # Statistics
//
// [Client.Statistics] returns the cached statistics instantly, with their freshness.
// [Client.RefreshStatistics] fetches them, falling back to the cache on transient back office
// failures. When there is no cache either [ErrNoData] is returned.
//
// # Notifications
//
// Notifications are short lived: at most 5 are kept and each one expires after 6 seconds. Use
// [Config].OnNotification to receive them as they happen.
//
// # Testing
//
// Use the fake back office and an in memory state to write tests without infrastructure:
//
//	client, _ := lib.New(ctx, lib.Config{InMemory: true, FakeAPI: true})
//	defer client.Close()
package lib
