package record

// Processor filters and transforms records before a pipeline handles them.
// A record that Accept rejects is dropped; otherwise Transform's result replaces it.
type Processor interface {
	Accept(r Record) bool
	Transform(r Record) Record
}

// Process applies p to r. A nil Processor passes every record through unchanged.
func Process(p Processor, r Record) (Record, bool) {
	if p == nil {
		return r, true
	}
	if !p.Accept(r) {
		return Record{}, false
	}
	return p.Transform(r), true
}

// ProcessorFuncs adapts plain functions to Processor. Nil fields accept everything
// and leave records unchanged.
type ProcessorFuncs struct {
	AcceptFunc    func(Record) bool
	TransformFunc func(Record) Record
}

func (f ProcessorFuncs) Accept(r Record) bool {
	if f.AcceptFunc == nil {
		return true
	}
	return f.AcceptFunc(r)
}

func (f ProcessorFuncs) Transform(r Record) Record {
	if f.TransformFunc == nil {
		return r
	}
	return f.TransformFunc(r)
}
