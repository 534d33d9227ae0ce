package agent

// DefaultID 未指定 agent 时使用的默认坐席
const DefaultID = "tara"

// Agent describes a hosted conversational agent a caller can be connected to.
type Agent struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	RoomName    string   `json:"roomName"`
	Expertise   []string `json:"expertise,omitempty"`
}

// Seed provides the agents served by this deployment.
func Seed() []Agent {
	return []Agent{
		{
			ID:          DefaultID,
			Name:        "Tara",
			Title:       "Medical Counselor",
			Description: "Get help with your gallbladder stone concerns and book an appointment",
			RoomName:    "tara-medical-counselor",
			Expertise:   []string{"gallbladder stones", "appointment booking"},
		},
	}
}
