package document

import "github.com/nugget/trunk-status/internal/snapshot"

// Source mirrors one SDR source. Each gain stage is published twice: as a
// flat "<stage>_gain" key, which is what existing dashboards read, and as
// an element of the ordered "gain_stages" list.
func Source(src snapshot.SourceView) *Object {
	o := NewObject().
		Put("source_num", src.Num()).
		Put("antenna", src.Antenna()).
		Put("silence_frames", src.SilenceFrames()).
		Put("min_hz", src.MinHz()).
		Put("max_hz", src.MaxHz()).
		Put("center", src.Center()).
		Put("rate", src.Rate()).
		Put("driver", src.Driver()).
		Put("device", src.Device()).
		Put("error", src.FreqError()).
		Put("gain", src.Gain())

	stages := src.GainStages()
	list := make(List, 0, len(stages))
	for _, st := range stages {
		o.Put(st.Name+"_gain", st.Value)
		list = append(list, NewObject().
			Put("stage_name", st.Name).
			Put("value", st.Value))
	}
	o.Put("gain_stages", list)

	return o.
		Put("analog_recorders", src.AnalogRecorders()).
		Put("digital_recorders", src.DigitalRecorders()).
		Put("debug_recorders", src.DebugRecorders()).
		Put("sigmf_recorders", src.SigMFRecorders())
}

// System mirrors a system's configuration. The channel list and the
// band-plan keys depend on the system_type tag; see
// [snapshot.VariantOf].
func System(sys snapshot.SystemView) *Object {
	o := NewObject().
		Put("audioArchive", sys.AudioArchive()).
		Put("systemType", sys.SystemType()).
		Put("shortName", sys.ShortName()).
		Put("sysNum", sys.SysNum()).
		Put("uploadScript", sys.UploadScript()).
		// Key spelling is part of the published format.
		Put("recordUnkown", sys.RecordUnknown()).
		Put("callLog", sys.CallLog()).
		Put("talkgroupsFile", sys.TalkgroupsFile()).
		Put("analog_levels", sys.AnalogLevels()).
		Put("digital_levels", sys.DigitalLevels()).
		Put("qpsk", sys.QPSK()).
		Put("squelch_db", sys.SquelchDB()).
		Put("channels", Floats(snapshot.PublishedChannels(sys)))

	if snapshot.VariantOf(sys.SystemType()) == snapshot.VariantSmartNet {
		bp := sys.Bandplan()
		o.Put("bandplan", bp.Name).
			Put("bandfreq", bp.Freq).
			Put("bandplan_base", bp.Base).
			Put("bandplan_high", bp.High).
			Put("bandplan_spacing", bp.Spacing).
			Put("bandplan_offset", bp.Offset)
	}
	return o
}

// SystemStats is the short form of a system: id, name and type.
func SystemStats(sys snapshot.SystemView) *Object {
	return NewObject().
		Put("id", sys.SysNum()).
		Put("name", sys.ShortName()).
		Put("type", sys.SystemType())
}

// SystemSetup is what the system setup hooks publish: the short form
// followed by the full configuration mirror from [System].
func SystemSetup(sys snapshot.SystemView) *Object {
	o := SystemStats(sys)
	full := System(sys)
	for i, k := range full.keys {
		o.Put(k, full.values[i])
	}
	return o
}

// SystemRates reports a system's decode rate over interval seconds.
func SystemRates(sys snapshot.SystemView, interval float64) *Object {
	return NewObject().
		Put("id", sys.SysNum()).
		Put("decoderate", sys.DecodeRate()).
		Put("decoderate_interval", interval).
		Put("control_channel", sys.CurrentControlChannel())
}

// Call mirrors a call in progress. Recorder fields are present only while
// a recorder is attached.
func Call(c snapshot.CallView) *Object {
	o := NewObject().
		Put("id", c.ID()).
		Put("callNum", c.CallNum()).
		Put("freq", c.Freq()).
		Put("sysNum", c.SysNum()).
		Put("shortName", c.ShortName()).
		Put("talkgroup", c.Talkgroup()).
		Put("talkgroupAlphaTag", c.TalkgroupAlphaTag()).
		Put("talkgroupDescription", c.TalkgroupDescription()).
		Put("talkgroupTag", c.TalkgroupTag()).
		Put("talkgroupGroup", c.TalkgroupGroup()).
		Put("elapsed", c.Elapsed()).
		Put("length", c.Length()).
		Put("state", c.State()).
		Put("phase2", c.Phase2()).
		Put("conventional", c.Conventional()).
		Put("encrypted", c.Encrypted()).
		Put("emergency", c.Emergency()).
		Put("startTime", c.StartTime()).
		Put("stopTime", c.StopTime()).
		Put("srcId", c.SrcID())

	if rec, ok := c.Recorder(); ok {
		o.Put("recNum", rec.Num).
			Put("srcNum", rec.SrcNum).
			Put("recState", rec.State).
			Put("analog", rec.Analog)
	}
	return o
}

// Recorder mirrors one recorder slot.
func Recorder(r snapshot.RecorderView) *Object {
	return NewObject().
		Put("id", r.ID()).
		Put("type", r.Type()).
		Put("srcNum", r.SourceNum()).
		Put("recNum", r.Num()).
		Put("count", r.Count()).
		Put("duration", r.Duration()).
		Put("state", r.State())
}

// Config is the full configuration dump: every source and system followed
// by the process settings. broadcast_signals only appears when enabled.
func Config(sources []snapshot.SourceView, systems []snapshot.SystemView, cfg snapshot.ConfigView) *Object {
	srcList := make(List, 0, len(sources))
	for _, s := range sources {
		srcList = append(srcList, Source(s))
	}
	sysList := make(List, 0, len(systems))
	for _, s := range systems {
		sysList = append(sysList, System(s))
	}

	o := NewObject().
		Put("sources", srcList).
		Put("systems", sysList)
	if cfg != nil {
		o.Put("captureDir", cfg.CaptureDir()).
			Put("uploadServer", cfg.UploadServer()).
			Put("callTimeout", cfg.CallTimeout()).
			Put("logFile", cfg.LogFile()).
			Put("instanceId", cfg.InstanceID()).
			Put("instanceKey", cfg.InstanceKey())
	}
	o.Put("type", "config")
	if cfg != nil && cfg.BroadcastSignals() {
		o.Put("broadcast_signals", true)
	}
	return o
}

// SystemSetupList builds the list published by the systems setup hook.
func SystemSetupList(systems []snapshot.SystemView) List {
	out := make(List, 0, len(systems))
	for _, s := range systems {
		out = append(out, SystemSetup(s))
	}
	return out
}

// SystemRatesList builds the list published on each rates tick.
func SystemRatesList(systems []snapshot.SystemView, interval float64) List {
	out := make(List, 0, len(systems))
	for _, s := range systems {
		out = append(out, SystemRates(s, interval))
	}
	return out
}

// CallList builds the list published on each active-calls tick.
func CallList(calls []snapshot.CallView) List {
	out := make(List, 0, len(calls))
	for _, c := range calls {
		out = append(out, Call(c))
	}
	return out
}

// RecorderList builds the list published by the recorders batch hook.
func RecorderList(recorders []snapshot.RecorderView) List {
	out := make(List, 0, len(recorders))
	for _, r := range recorders {
		out = append(out, Recorder(r))
	}
	return out
}
