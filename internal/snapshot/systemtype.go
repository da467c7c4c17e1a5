package snapshot

// Known system_type discriminator values. Any other value is treated as a
// generic trunked system.
const (
	TypeConventional    = "conventional"
	TypeConventionalP25 = "conventionalP25"
	TypeSmartNet        = "smartnet"
	TypeP25             = "p25"
)

// Variant is the decoded form of a system_type tag.
type Variant int

const (
	// VariantTrunked covers every tag without its own extension fields.
	VariantTrunked Variant = iota
	// VariantConventional systems publish their voice channels instead of
	// control channels.
	VariantConventional
	// VariantSmartNet systems carry band-plan parameters.
	VariantSmartNet
)

// VariantOf decodes a system_type tag. Matching is exact; the recorder
// writes these tags itself.
func VariantOf(systemType string) Variant {
	switch systemType {
	case TypeConventional, TypeConventionalP25:
		return VariantConventional
	case TypeSmartNet:
		return VariantSmartNet
	default:
		return VariantTrunked
	}
}

// PublishedChannels returns the channel list a system's dump carries:
// voice channels for conventional systems, control channels otherwise.
func PublishedChannels(sys SystemView) []float64 {
	if VariantOf(sys.SystemType()) == VariantConventional {
		return sys.Channels()
	}
	return sys.ControlChannels()
}
