package jobcall

// Result is the outcome of dispatching a Call to its handler. Errors are
// dropped by the aggregating consumer rather than submitted on-chain.
type Result struct {
	ServiceID uint64
	CallID    uint64
	JobIndex  uint8
	Metadata  *MetadataMap

	Body []byte
	Err  error
}

// OK reports whether the handler produced a usable body.
func (r Result) OK() bool {
	return r.Err == nil
}

// NewOKResult builds a successful Result carrying body, inheriting the
// metadata from the originating Call.
func NewOKResult(call Call, body []byte) Result {
	return Result{
		ServiceID: call.ServiceID,
		CallID:    call.CallID,
		JobIndex:  call.JobIndex,
		Metadata:  call.Metadata,
		Body:      body,
	}
}

// NewErrResult builds a failed Result; the consumer drops these.
func NewErrResult(call Call, err error) Result {
	return Result{
		ServiceID: call.ServiceID,
		CallID:    call.CallID,
		JobIndex:  call.JobIndex,
		Metadata:  call.Metadata,
		Err:       err,
	}
}
