package upsert

// SearchItem is one raw entry from the external search-results feed.
type SearchItem struct {
	ChannelIdentifier string
	OriginalID        int64
	UserID            string
	Name              string
	Email             string
	Avatar            string
	JobTitle          string
	DepartmentName    string
	LocationName      string
	Bio               string
	MemberCount       int
	IsDistinct        bool
	CustomType        string
	SharedChannels    []SharedChannel
}

// SharedChannel is one entry of the shared-channel summary that may
// accompany a person-type payload.
type SharedChannel struct {
	ChannelIdentifier string
	Name              string
	MemberCount       int
	IsDistinct        bool
}

// ChatData is the payload of a chat-opened interaction event from the UI
// layer. The Type the caller believes in is deliberately absent: the final
// type is derived strictly from the resolved user identifier.
type ChatData struct {
	// ID is the identifier the caller opened the chat under: a channel
	// identifier post-migration, possibly a legacy numeric id rendered as
	// a string for older callers.
	ID string

	OriginalID        int64
	ChannelIdentifier string
	UserID            string
	Name              string
	Avatar            string
	Email             string
	MemberCount       int
	IsDistinct        bool
	CustomType        string
	SharedChannels    []SharedChannel
}

// directSharedChannel returns the two-party direct entry of a
// shared-channel summary, or nil when none exists.
func directSharedChannel(channels []SharedChannel) *SharedChannel {
	for i := range channels {
		if channels[i].IsDistinct && channels[i].MemberCount == 2 {
			return &channels[i]
		}
	}
	return nil
}
