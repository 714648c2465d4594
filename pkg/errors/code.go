package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Intake & Submission errors
// 12000-12999: Reference material & Test case errors
// 13000-13999: Compile & Execute pipeline errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10004
	Timeout             ErrorCode = 10005

	// Database errors (10100-10199)
	DatabaseError  ErrorCode = 10100
	RecordNotFound ErrorCode = 10101

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10201

	// Storage errors (10300-10399)
	StorageError   ErrorCode = 10300
	ObjectNotFound ErrorCode = 10301

	// Validation errors (10400-10499)
	ValidationFailed ErrorCode = 10400

	// ========== Intake & Submission Errors (11000-11999) ==========

	SubmissionNotFound ErrorCode = 11000
	UploadBatchInvalid ErrorCode = 11001

	// ========== Reference Material & Test Case Errors (12000-12999) ==========

	TestCaseNotFound     ErrorCode = 12000
	IngestFailed         ErrorCode = 12001
	DependencyCycle      ErrorCode = 12002
	DependencyDangling   ErrorCode = 12003
	ReferenceRunFailed   ErrorCode = 12004
	FixturePackCorrupted ErrorCode = 12005

	// ========== Compile & Execute Pipeline Errors (13000-13999) ==========

	CompileFailed     ErrorCode = 13000
	CompileNotFound   ErrorCode = 13001
	GraderSystemError ErrorCode = 13100
	GraderQueueFull   ErrorCode = 13101
	ResultNotFound    ErrorCode = 13102
	AggregatePending  ErrorCode = 13103
)

// codeMessages maps error codes to default human-readable messages
var codeMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Operation timed out",

	DatabaseError:  "Database operation failed",
	RecordNotFound: "Record not found",

	CacheError: "Cache operation failed",
	LockFailed: "Failed to acquire lock",

	StorageError:   "Object storage operation failed",
	ObjectNotFound: "Object not found in storage",

	ValidationFailed: "Validation failed",

	SubmissionNotFound: "Submission not found",
	UploadBatchInvalid: "Upload batch is invalid",

	TestCaseNotFound:     "Test case not found",
	IngestFailed:         "Reference material ingestion failed",
	DependencyCycle:      "Test dependency graph contains a cycle",
	DependencyDangling:   "Test declares an unknown predecessor",
	ReferenceRunFailed:   "Reference solution run failed",
	FixturePackCorrupted: "Fixture pack is corrupted",

	CompileFailed:     "Compilation failed",
	CompileNotFound:   "Compile record not found",
	GraderSystemError: "Grader system error",
	GraderQueueFull:   "Grader worker pool is full",
	ResultNotFound:    "Execution result not found",
	AggregatePending:  "Aggregate result is not ready yet",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == RecordNotFound, c == ObjectNotFound,
		c == SubmissionNotFound, c == TestCaseNotFound,
		c == CompileNotFound, c == ResultNotFound,
		c == AggregatePending:
		// A pending aggregate is indistinguishable from an unknown
		// submission on purpose; the body's code tells them apart.
		return 404
	case c == InvalidParams, c == ValidationFailed, c == UploadBatchInvalid,
		c == DependencyCycle, c == DependencyDangling:
		return 400
	case c == ServiceUnavailable, c == GraderQueueFull:
		return 503
	case c == Timeout:
		return 504
	default:
		return 500
	}
}
