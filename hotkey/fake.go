package hotkey

// Fake is a Hotkey driven by Press and Release.
type Fake struct {
	RegisterErr error

	keydown    chan struct{}
	keyup      chan struct{}
	registered bool
}

func NewFake() *Fake {
	return &Fake{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (f *Fake) Register() error {
	if f.RegisterErr != nil {
		return f.RegisterErr
	}
	f.registered = true
	return nil
}

func (f *Fake) Unregister()              { f.registered = false }
func (f *Fake) Registered() bool         { return f.registered }
func (f *Fake) Keydown() <-chan struct{} { return f.keydown }
func (f *Fake) Keyup() <-chan struct{}   { return f.keyup }

func (f *Fake) Press()   { f.keydown <- struct{}{} }
func (f *Fake) Release() { f.keyup <- struct{}{} }
