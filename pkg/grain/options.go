package grain

// Options carries per-call invocation settings for an outbound request,
// analogous to Orleans-style InvokeMethodOptions.
type Options struct {
	// OneWay requests fire-and-forget delivery: no CallbackData is
	// registered and no response is ever awaited.
	OneWay bool

	// GenericArguments, if non-empty, is stamped onto the message so the
	// target can resolve a generic grain interface.
	GenericArguments string
}

// Reference is a handle to a remote or local addressable entity. Callers
// construct it directly, for a local callback object from the GrainID that
// LocalObjectRegistry.CreateObjectReference returns.
type Reference struct {
	GrainID GrainID
	Silo    SiloID // non-zero only for system targets
}

func (r Reference) IsSystemTarget() bool { return r.GrainID.Kind == KindSystemTarget }
