package domain

// Privileges is the account privilege bitmask, mirroring the users table.
type Privileges uint32

const (
	// PrivPublic makes the account publicly visible (leaderboards, profile).
	PrivPublic Privileges = 1 << 0
	// PrivNormal allows the account to log in and play.
	PrivNormal    Privileges = 1 << 1
	PrivDonor     Privileges = 1 << 2
	PrivVerified  Privileges = 1 << 3
	PrivModerator Privileges = 1 << 4
	PrivAdmin     Privileges = 1 << 5
)

// IsBanned: the account may not even log in.
func (p Privileges) IsBanned() bool {
	return p&PrivNormal == 0 && p&PrivPublic == 0
}

// IsRestricted: the account may play but is hidden from everyone else.
func (p Privileges) IsRestricted() bool {
	return p&PrivNormal != 0 && p&PrivPublic == 0
}

// IsPubliclyVisible reports whether the account appears on leaderboards.
func (p Privileges) IsPubliclyVisible() bool {
	return p&PrivPublic != 0
}

// IsNotAllowed gates first-place flows and leaderboard insertion.
func (p Privileges) IsNotAllowed() bool {
	return !p.IsPubliclyVisible()
}
