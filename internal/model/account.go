package model

// Account is the closed set of authenticated principals.  Role specific data
// is only reachable through the concrete variant, so callers type switch:
//
//  switch a := acct.(type) {
//  case *model.Agronomist:
//      if a.Profile.Status != model.AgronomistVerified { ... }
//  }
type Account interface {
    Identity() *User
    Kind() Role
    account()
}

type Farmer struct{ User }

type Admin struct{ User }

// Agronomist carries the 1:1 profile row.
type Agronomist struct {
    User
    Profile AgronomistProfile
}

func (f *Farmer) Identity() *User     { return &f.User }
func (a *Admin) Identity() *User      { return &a.User }
func (a *Agronomist) Identity() *User { return &a.User }

func (*Farmer) Kind() Role     { return RoleFarmer }
func (*Admin) Kind() Role      { return RoleAdmin }
func (*Agronomist) Kind() Role { return RoleAgronomist }

func (*Farmer) account()     {}
func (*Admin) account()      {}
func (*Agronomist) account() {}
