package jshost

// CompileToBytecode serializes src into a bytecode artifact for later use
// with ExecuteSerialized. It is best-effort: any failure, including a
// failed size probe or a zero size, returns nil and is only logged.
func (r *Runtime) CompileToBytecode(src SourceBuffer) *BytecodeBuffer {
	text, err := r.sourceText(src)
	if err != nil {
		r.logger.Debug().Err(err).Msg("compile skipped")
		return nil
	}
	if r.isClosed() {
		return nil
	}

	size, err := r.engine.SerializeScript(text, nil)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", src.URL).Msg("bytecode size probe failed")
		return nil
	}
	buf, err := NewBytecodeBuffer(size)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", src.URL).Msg("bytecode size probe returned no data")
		return nil
	}
	n, err := r.engine.SerializeScript(text, buf.data)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", src.URL).Msg("bytecode serialization failed")
		return nil
	}
	if n != size {
		r.logger.Debug().Int("want", size).Int("got", n).Str("url", src.URL).Msg("bytecode size changed between probe and fill")
		return nil
	}
	return buf
}
