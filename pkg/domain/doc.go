// Package domain defines the core governance types shared by every stage of the
// decision pipeline.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. All types in this package are:
//
// - Independent of infrastructure (no HTTP, reasoning engine, file formats)
// - Closed where the governance contract is closed (Decision, RiskLevel)
// - Testable in isolation without mocks
//
// Other packages (storage, policy, assessment, pipeline) produce and consume these
// types. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
