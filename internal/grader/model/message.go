package model

// CompileJob is the payload published on the compile topic when a
// submission is accepted by the intake subsystem.
type CompileJob struct {
	SubmissionID string `json:"submission_id"`
}

// ExecuteJob is published by the compile stage after a successful compile.
// Publishing only after the compile record exists is what enforces the
// compile-before-execute ordering for one submission.
type ExecuteJob struct {
	SubmissionID string `json:"submission_id"`
	Homework     string `json:"homework"`
	Type         string `json:"type"`
	BinaryKey    string `json:"binary_key"` // object key of the compiled binary
}
