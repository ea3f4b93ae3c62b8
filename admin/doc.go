// Package admin assembles the zwatch operational subtree (an http.Handler) from ops handlers.
//
// Mount the returned handler under a prefix of your own mux:
//
//	mux.Handle("/-/", http.StripPrefix("/-", admin.New(...)))
//
// Rules:
//   - Nothing is mounted unless enabled with an EnableXxx option.
//   - Every enabled capability needs a non-nil Guard. Write capabilities are usually given a
//     Tokens guard; reads are often AllowAll.
//   - Each capability owns one path. Invalid or duplicated paths, nil guards and missing
//     dependencies are assembly errors and panic.
//
// Default paths, relative to the mount point:
//
//	/                  index of mounted paths (GET)
//	/healthz           liveness
//	/readyz            readiness checks
//	/stopwatch         stopwatch state
//	/stopwatch/command apply r|s|c (POST)
//	/tasks             scheduler snapshot
//	/tasks/period      change a task period (POST)
//	/log/level         current log level
//	/log/level/set     set log level (POST)
//	/tuning            tuning snapshot
//	/tuning/overrides  values differing from defaults
//	/tuning/set        set a tuning value (POST)
//	/tuning/reset      reset a tuning value (POST)
//
// The subtree is wrapped with httpx.Recover and httpx.AccessLog.
package admin
