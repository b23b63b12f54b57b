package audio

import "fmt"

// Acquire opens and starts a capture stream with cb installed. When the
// platform rejects the request it retries once with every processing
// constraint disabled. The returned config is the one that succeeded.
func Acquire(ctx Context, device *DeviceInfo, cfg CaptureConfig, cb DataCallback) (CaptureDevice, CaptureConfig, error) {
	capture, err := open(ctx, device, cfg, cb)
	if err == nil {
		return capture, cfg, nil
	}

	fallback := cfg
	fallback.Constraints = ConservativeConstraints()
	capture, retryErr := open(ctx, device, fallback, cb)
	if retryErr == nil {
		return capture, fallback, nil
	}
	return nil, cfg, Classify(fmt.Errorf("acquire microphone: %w (first attempt: %v)", retryErr, err))
}

func open(ctx Context, device *DeviceInfo, cfg CaptureConfig, cb DataCallback) (CaptureDevice, error) {
	capture, err := ctx.NewCapture(device, cfg)
	if err != nil {
		return nil, err
	}
	capture.SetCallback(cb)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return nil, err
	}
	return capture, nil
}
