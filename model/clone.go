package model

// Clone returns a deep copy of c.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	out := *c
	switch v := c.Variant.(type) {
	case *SelfDetails:
		out.Variant = v.clone()
	case *PeerDetails:
		out.Variant = v.clone()
	case *GroupDetails:
		out.Variant = v.clone()
	}
	return &out
}

func (s *SelfDetails) clone() *SelfDetails {
	out := *s
	if s.Credentials != nil {
		creds := *s.Credentials
		out.Credentials = &creds
	}
	out.Presence = s.Presence.Clone()
	if s.PublicKey != nil {
		k := *s.PublicKey
		out.PublicKey = &k
	}
	return &out
}

func (p *PeerDetails) clone() *PeerDetails {
	out := *p
	out.Presence = p.Presence.Clone()
	if p.Relationship != nil {
		r := *p.Relationship
		out.Relationship = &r
	}
	if p.PublicKey != nil {
		k := *p.PublicKey
		out.PublicKey = &k
	}
	return &out
}

func (g *GroupDetails) clone() *GroupDetails {
	out := *g
	if g.Presence != nil {
		gp := *g.Presence
		gp.Admins = append([]string(nil), g.Presence.Admins...)
		out.Presence = &gp
	}
	out.Members = make(map[string]*GroupMember, len(g.Members))
	for id, m := range g.Members {
		mc := *m
		out.Members[id] = &mc
	}
	if g.GroupKey != nil {
		out.GroupKey = append([]byte(nil), g.GroupKey...)
	}
	return &out
}

// Clone returns a copy of p.
func (p *Presence) Clone() *Presence {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// Clone returns a deep copy of m.
func (m *ClientMessage) Clone() *ClientMessage {
	if m == nil {
		return nil
	}
	out := *m
	if m.Attachment != nil {
		a := *m.Attachment
		out.Attachment = &a
	}
	if m.Message != nil {
		msg := *m.Message
		out.Message = &msg
	}
	if m.Delivery != nil {
		d := *m.Delivery
		out.Delivery = &d
	}
	if m.Upload != nil {
		u := *m.Upload
		u.Key = append([]byte(nil), m.Upload.Key...)
		out.Upload = &u
	}
	if m.Download != nil {
		d := *m.Download
		d.Key = append([]byte(nil), m.Download.Key...)
		out.Download = &d
	}
	return &out
}
