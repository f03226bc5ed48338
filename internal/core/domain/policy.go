package domain

// TenantPolicy captures the session admission-control settings configured per
// application. It is owned by tenant configuration and read-only here.
type TenantPolicy struct {
	MultiDeviceLogin    bool
	MultiDeviceLoginNum int
}

// DeviceLimit resolves the maximum number of concurrently live sessions an
// identity may hold under this policy.
func (p TenantPolicy) DeviceLimit() int {
	if !p.MultiDeviceLogin {
		return 1
	}
	if p.MultiDeviceLoginNum < 1 {
		return 1
	}
	return p.MultiDeviceLoginNum
}
