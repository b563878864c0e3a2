package nvs

import "github.com/mitchellh/mapstructure"

// WifiConfig is the `wifi` namespace from the persisted state layout.
type WifiConfig struct {
	SSID     string `mapstructure:"ssid"`
	Password string `mapstructure:"password"`
}

// SIPConfig is the `sip` namespace from the persisted state layout.
type SIPConfig struct {
	User        string `mapstructure:"sip_user"`
	Password    string `mapstructure:"sip_password"`
	DisplayName string `mapstructure:"sip_displayname"`
	Target      string `mapstructure:"sip_target"`
	Enabled     uint8  `mapstructure:"sip_enabled"`
	Verbose     uint8  `mapstructure:"sip_verbose"`
}

// CameraConfig is the `camera` namespace from the persisted state layout.
type CameraConfig struct {
	FrameSize    uint8 `mapstructure:"framesize"`
	Quality      uint8 `mapstructure:"quality"`
	Brightness   int8  `mapstructure:"brightness"`
	Contrast     int8  `mapstructure:"contrast"`
	HTTPCamEn    uint8 `mapstructure:"http_cam_en"`
	RTSPEnabled  uint8 `mapstructure:"rtsp_enabled"`
	MicEn        uint8 `mapstructure:"mic_en"`
	MicMute      uint8 `mapstructure:"mic_mute"`
	MicSens      uint8 `mapstructure:"mic_sens"`
	MicSource    uint8 `mapstructure:"mic_source"`
	AudVolume    uint8 `mapstructure:"aud_volume"`
	AACRate      uint8 `mapstructure:"aac_rate"`
	AACBitr      uint8 `mapstructure:"aac_bitr"`
	HWDiag       uint8 `mapstructure:"hw_diag"`
}

// SystemConfig is the `system` namespace from the persisted state layout.
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// Decode reads every committed key in the namespace and decodes it into
// out (a pointer to one of the typed config structs above), using
// mapstructure's weak-typing conversion since every stored value is
// text regardless of its logical type.
func (h *Handle) Decode(out interface{}) error {
	raw, err := h.All()
	if err != nil {
		return err
	}

	values := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		values[k] = v
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(values)
}
