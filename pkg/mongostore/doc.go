// Package mongostore persists subscription records in MongoDB and
// implements entitlement.Store.
//
// The daily-counter increment is a single FindOneAndUpdate with an
// aggregation-pipeline update: when the stored last-generation timestamp
// is before the current UTC day, the counter restarts at one, otherwise
// it increments. Reset and increment happen in one server-side step, so
// concurrent writers from multiple devices never lose an increment or
// observe a half-reset counter.
package mongostore
