package domain

// DefaultTemplates are seeded when the table is empty.
var DefaultTemplates = []PublishRequest{
	{
		Type:         TypeLyrics,
		SystemPrompt: "You are a songwriter who writes warm, personal song lyrics. Reply with lyrics only.",
		Body: `Write song lyrics for {{recipientName}} for the occasion "{{occasion}}".
Their story: {{story}}
Genre: {{genre}}. Mood: {{mood}}. Vibe: {{vibe}}. Tempo: {{tempo}}.
Language: {{language}}. Sung by a {{vocalGender}} voice. From {{senderName}}.
Use [Verse], [Chorus] and [Bridge] section tags and keep it under 300 words.`,
	},
	{
		Type:         TypeMoodDescription,
		SystemPrompt: "You describe the musical mood of a song in one short paragraph.",
		Body: `Describe the mood, instrumentation and energy for a {{genre}} song with a {{mood}} mood and {{tempo}} tempo.
Lyrics:
{{lyrics}}`,
	},
	{
		Type: TypeMusic,
		Body: `{{genre}}, {{mood}}, {{vibe}}, {{tempo}} tempo, {{vocalGender}} vocals. {{moodDescription}}`,
	},
}
