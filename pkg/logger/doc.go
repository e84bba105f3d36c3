// Package logger wraps zerolog behind a small structured logging interface.
//
// Components take a Logger and attach their own fields:
//
//	log := logger.GetLogger().WithField("component", "crawler")
//	log.InfoWithFields("Page fetched", map[string]interface{}{
//	    "cafe_id": "31000000",
//	    "page":    3,
//	})
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
