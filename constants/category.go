package constants

// DefaultCategory is assigned to transactions the extraction could not classify.
const DefaultCategory = "Miscellaneous"
