package bridge

// ConfigDump collects the key=value lines of a device configuration dump.
// Owned by the control goroutine.
type ConfigDump struct {
	active  bool
	values  map[string]string
	order   []string
	waiters []chan map[string]string
}

func (d *ConfigDump) Active() bool { return d.active }

// Begin starts a new collection, discarding any partial one.
func (d *ConfigDump) Begin() {
	d.active = true
	d.values = make(map[string]string)
	d.order = nil
}

func (d *ConfigDump) Add(key, value string) {
	if !d.active {
		return
	}
	if _, seen := d.values[key]; !seen {
		d.order = append(d.order, key)
	}
	d.values[key] = value
}

// Wait registers a channel that receives the values when the dump ends.
func (d *ConfigDump) Wait() <-chan map[string]string {
	ch := make(chan map[string]string, 1)
	d.waiters = append(d.waiters, ch)
	return ch
}

// End finishes the collection and hands the values to every waiter.
func (d *ConfigDump) End() map[string]string {
	d.active = false
	values := d.Values()
	for _, ch := range d.waiters {
		ch <- values
	}
	d.waiters = nil
	return values
}

// Abort ends the collection without a result, e.g. when the device drops.
func (d *ConfigDump) Abort() {
	d.active = false
	for _, ch := range d.waiters {
		close(ch)
	}
	d.waiters = nil
}

// Values returns a copy of the collected values.
func (d *ConfigDump) Values() map[string]string {
	out := make(map[string]string, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// Keys lists the keys in the order the device sent them.
func (d *ConfigDump) Keys() []string {
	return append([]string(nil), d.order...)
}
