package models

// EntityType classifies extracted entities.
type EntityType string

const (
	EntityTypeAccount  EntityType = "account"
	EntityTypeHost     EntityType = "host"
	EntityTypeIP       EntityType = "ip"
	EntityTypeFile     EntityType = "file"
	EntityTypeProcess  EntityType = "process"
	EntityTypeURL      EntityType = "url"
	EntityTypeDNS      EntityType = "dns"
	EntityTypeFileHash EntityType = "file_hash"
	EntityTypeMailbox  EntityType = "mailbox"
	EntityTypeOther    EntityType = "other"
)

// IsValid checks if the entity type is a known value.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeAccount, EntityTypeHost, EntityTypeIP, EntityTypeFile,
		EntityTypeProcess, EntityTypeURL, EntityTypeDNS, EntityTypeFileHash,
		EntityTypeMailbox, EntityTypeOther:
		return true
	default:
		return false
	}
}

// Entity is a single typed entity extracted from an alert payload.
type Entity struct {
	Type       EntityType     `json:"type"`
	Value      string         `json:"value"`
	Properties map[string]any `json:"properties,omitempty"`
	Confidence float64        `json:"confidence"`
	SourceID   string         `json:"source_id,omitempty"`
}

// EntityBundle groups the entities extracted from one alert by type.
type EntityBundle struct {
	Accounts    []Entity `json:"accounts,omitempty"`
	Hosts       []Entity `json:"hosts,omitempty"`
	IPs         []Entity `json:"ips,omitempty"`
	Files       []Entity `json:"files,omitempty"`
	Processes   []Entity `json:"processes,omitempty"`
	URLs        []Entity `json:"urls,omitempty"`
	DNS         []Entity `json:"dns,omitempty"`
	FileHashes  []Entity `json:"file_hashes,omitempty"`
	Mailboxes   []Entity `json:"mailboxes,omitempty"`
	Other       []Entity `json:"other,omitempty"`
	RawIOCs     []string `json:"raw_iocs,omitempty"`
	ParseErrors []string `json:"parse_errors,omitempty"`
}

// ByType returns the entity slice for the given type.
func (b *EntityBundle) ByType(t EntityType) []Entity {
	switch t {
	case EntityTypeAccount:
		return b.Accounts
	case EntityTypeHost:
		return b.Hosts
	case EntityTypeIP:
		return b.IPs
	case EntityTypeFile:
		return b.Files
	case EntityTypeProcess:
		return b.Processes
	case EntityTypeURL:
		return b.URLs
	case EntityTypeDNS:
		return b.DNS
	case EntityTypeFileHash:
		return b.FileHashes
	case EntityTypeMailbox:
		return b.Mailboxes
	case EntityTypeOther:
		return b.Other
	default:
		return nil
	}
}

// Add appends an entity to the slice matching its type. Entities with an
// unknown type land in Other so nothing extracted is silently dropped.
func (b *EntityBundle) Add(e Entity) {
	switch e.Type {
	case EntityTypeAccount:
		b.Accounts = append(b.Accounts, e)
	case EntityTypeHost:
		b.Hosts = append(b.Hosts, e)
	case EntityTypeIP:
		b.IPs = append(b.IPs, e)
	case EntityTypeFile:
		b.Files = append(b.Files, e)
	case EntityTypeProcess:
		b.Processes = append(b.Processes, e)
	case EntityTypeURL:
		b.URLs = append(b.URLs, e)
	case EntityTypeDNS:
		b.DNS = append(b.DNS, e)
	case EntityTypeFileHash:
		b.FileHashes = append(b.FileHashes, e)
	case EntityTypeMailbox:
		b.Mailboxes = append(b.Mailboxes, e)
	default:
		b.Other = append(b.Other, e)
	}
}

// All returns every entity in the bundle in type order.
func (b *EntityBundle) All() []Entity {
	out := make([]Entity, 0,
		len(b.Accounts)+len(b.Hosts)+len(b.IPs)+len(b.Files)+len(b.Processes)+
			len(b.URLs)+len(b.DNS)+len(b.FileHashes)+len(b.Mailboxes)+len(b.Other))
	out = append(out, b.Accounts...)
	out = append(out, b.Hosts...)
	out = append(out, b.IPs...)
	out = append(out, b.Files...)
	out = append(out, b.Processes...)
	out = append(out, b.URLs...)
	out = append(out, b.DNS...)
	out = append(out, b.FileHashes...)
	out = append(out, b.Mailboxes...)
	out = append(out, b.Other...)
	return out
}

// Count returns the total number of typed entities in the bundle.
func (b *EntityBundle) Count() int {
	return len(b.All())
}

// EntityIDs returns the primary values of every entity, for audit events.
func (b *EntityBundle) EntityIDs() []string {
	all := b.All()
	ids := make([]string, 0, len(all))
	for _, e := range all {
		ids = append(ids, e.Value)
	}
	return ids
}
