package session

// Shared profile block constants. The label is how the block is found again
// for a credential, so it must never change.
const (
	SharedProfileLabel = "statefultalk_shared_user_profile_v1"

	DefaultProfileContent = "I don't know anything about the user yet. I should try to find out more about them, " +
		"and write it to memory! I wonder what their name is. What are they interested in?"

	SharedProfileDescription = "This block contains information about the human user you are interacting with. " +
		"Refer to it to personalize your responses and remember details about them. " +
		"You can also update this block if you learn new, persistent information about the user."
)
