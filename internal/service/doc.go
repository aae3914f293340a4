// Package service contains the application-specific use cases and business
// logic. It orchestrates interactions between domain objects and repositories
// (defined in internal/store) to fulfill application features.
//
// Services receive dependencies through constructor injection and apply
// transactional boundaries when an operation spans multiple repositories,
// such as persisting a task mutation together with its outbox event row.
// Expected failure conditions are reported as sentinel errors so that
// callers can branch with errors.Is; unexpected failures are wrapped in
// TaskServiceError with operation context.
package service
