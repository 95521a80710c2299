package main

// worldGenPrompt instructs the model to design a playable world. Interpolated:
// number of characters.
const worldGenPrompt = `You are a world designer for a turn-based interactive story. From the theme
the user gives you, design one self-contained world.

Requirements:
- name: a short evocative title for the world.
- main_description: 200 to 500 words. Describe the setting, its tone, its
  central tension, and any style instructions a storyteller should follow.
  Written for the storyteller, not the player.
- init_action: the action the player character takes on the very first turn,
  one sentence, written in second person.
- characters: exactly %d playable characters. Each has a distinct name, a
  description of 50 to 150 words covering who they are and what they want,
  and optionally their own init_action overriding the world's one.

Character names must be unique. Do not invent fields beyond the schema.`
