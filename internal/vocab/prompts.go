package vocab

// Domain gate reference prompts. Exactly one positive and one negative
// prompt: the gate compares the photo against both and classifies by
// margin, so the texts must stay semantically opposed. Changing either
// text changes the meaning of its cached embedding — bump the domain
// prompt namespace version in config when editing.

// DomainPositiveID and DomainNegativeID key the prompt embeddings in the
// cache's domain-prompt namespace.
const (
	DomainPositiveID = "gym_positive"
	DomainNegativeID = "gym_negative"
)

// DomainPositivePrompt describes what an in-domain photo looks like.
const DomainPositivePrompt = "this is full gym equipment in a fitness setting"

// DomainNegativePrompt describes the out-of-domain case.
const DomainNegativePrompt = "this is people or an unrelated indoor scene"
